package person

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type (
	// NamingConvention tags which cultural naming convention a PersonName follows.
	// It does not change validation rules; it is metadata for presentation
	// layers (out of scope here) to format names correctly.
	NamingConvention string

	// PersonName is an ordered, locale-aware representation of a person's name.
	//
	// Two names are equal iff all components are equal, including order:
	// given/family name order is significant.
	PersonName struct {
		GivenNames          []string
		FamilyNames         []string
		MaternalFamilyName  string // empty string means absent
		Honorifics          []string
		Suffixes            []string
		Convention          NamingConvention
		Locale              string
	}

	// CoreIdentity holds the identity facts common to every person aggregate.
	CoreIdentity struct {
		LegalName PersonName
		BirthDate *time.Time // calendar date; time-of-day is ignored
		DeathDate *time.Time
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

// Naming conventions observed in production identity systems. The set is
// open-ended metadata, not a closed validation enum.
const (
	NamingConventionWestern            NamingConvention = "western"
	NamingConventionEasternGivenLast   NamingConvention = "eastern_given_last"
	NamingConventionSpanishTwoSurnames NamingConvention = "spanish_two_surnames"
	NamingConventionUnspecified        NamingConvention = ""
)

// NewPersonName validates and constructs a PersonName.
//
// Construction requires at least one non-empty name part across given,
// family, and maternal-family names, and rejects control characters in
// any string field.
func NewPersonName(
	given, family []string,
	maternalFamily string,
	honorifics, suffixes []string,
	convention NamingConvention,
	locale string,
) (PersonName, error) {
	name := PersonName{
		GivenNames:         append([]string(nil), given...),
		FamilyNames:        append([]string(nil), family...),
		MaternalFamilyName: maternalFamily,
		Honorifics:         append([]string(nil), honorifics...),
		Suffixes:           append([]string(nil), suffixes...),
		Convention:         convention,
		Locale:             locale,
	}

	if err := name.Validate(); err != nil {
		return PersonName{}, err
	}

	return name, nil
}

// Validate checks PersonName's invariants: at least one non-empty name
// part, and no control characters anywhere.
func (n PersonName) Validate() error {
	for _, part := range n.allParts() {
		if err := validateNoControlChars(part); err != nil {
			return err
		}
	}

	hasContent := strings.TrimSpace(n.MaternalFamilyName) != ""

	for _, part := range append(append([]string(nil), n.GivenNames...), n.FamilyNames...) {
		if strings.TrimSpace(part) != "" {
			hasContent = true
		}
	}

	if !hasContent {
		return ErrEmptyName
	}

	return nil
}

func (n PersonName) allParts() []string {
	parts := make([]string, 0, len(n.GivenNames)+len(n.FamilyNames)+len(n.Honorifics)+len(n.Suffixes)+1)
	parts = append(parts, n.GivenNames...)
	parts = append(parts, n.FamilyNames...)
	parts = append(parts, n.Honorifics...)
	parts = append(parts, n.Suffixes...)
	parts = append(parts, n.MaternalFamilyName)

	return parts
}

// Equal reports structural equality of all components, in order.
func (n PersonName) Equal(other PersonName) bool {
	return stringSliceEqual(n.GivenNames, other.GivenNames) &&
		stringSliceEqual(n.FamilyNames, other.FamilyNames) &&
		n.MaternalFamilyName == other.MaternalFamilyName &&
		stringSliceEqual(n.Honorifics, other.Honorifics) &&
		stringSliceEqual(n.Suffixes, other.Suffixes) &&
		n.Convention == other.Convention &&
		n.Locale == other.Locale
}

// String renders a best-effort display form: given names, then family
// names, in the order they were recorded. Locale-correct formatting is a
// presentation-layer concern outside this core.
func (n PersonName) String() string {
	parts := make([]string, 0, len(n.GivenNames)+len(n.FamilyNames))
	parts = append(parts, n.GivenNames...)
	parts = append(parts, n.FamilyNames...)

	return strings.Join(parts, " ")
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func validateNoControlChars(s string) error {
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrControlCharacter, s)
		}
	}

	return nil
}

// NewCoreIdentity validates and constructs a CoreIdentity.
func NewCoreIdentity(legalName PersonName, birthDate, deathDate *time.Time, createdAt, updatedAt time.Time) (CoreIdentity, error) {
	identity := CoreIdentity{
		LegalName: legalName,
		BirthDate: birthDate,
		DeathDate: deathDate,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	if err := identity.Validate(); err != nil {
		return CoreIdentity{}, err
	}

	return identity, nil
}

// Validate enforces: if both birth and death dates are present, death
// must not precede birth; updated_at must not precede created_at.
func (c CoreIdentity) Validate() error {
	if err := c.LegalName.Validate(); err != nil {
		return err
	}

	if c.BirthDate != nil && c.DeathDate != nil && c.DeathDate.Before(*c.BirthDate) {
		return ErrDeathBeforeBirth
	}

	if c.UpdatedAt.Before(c.CreatedAt) {
		return ErrUpdatedBeforeCreated
	}

	return nil
}
