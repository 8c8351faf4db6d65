package person

import "fmt"

type (
	// AttributeCategory is the top-level discriminant of an AttributeType.
	AttributeCategory string

	// AttributeType identifies what kind of fact a PersonAttribute records.
	//
	// It is a discriminated sum over AttributeCategory: Identifying,
	// Physical, Healthcare, and Demographic each carry a closed sub-kind
	// from their respective Kind* constants; Custom carries a free-form
	// CustomKey instead and ignores Kind.
	AttributeType struct {
		Category  AttributeCategory
		Kind      string
		CustomKey string // only meaningful when Category == AttributeCategoryCustom
	}
)

// Attribute categories.
const (
	AttributeCategoryIdentifying AttributeCategory = "identifying"
	AttributeCategoryPhysical    AttributeCategory = "physical"
	AttributeCategoryHealthcare  AttributeCategory = "healthcare"
	AttributeCategoryDemographic AttributeCategory = "demographic"
	AttributeCategoryCustom      AttributeCategory = "custom"
)

// Closed sub-kinds for AttributeCategoryIdentifying.
const (
	IdentifyingKindFormerLegalName   = "former_legal_name"
	IdentifyingKindPreferredName     = "preferred_name"
	IdentifyingKindNationalID        = "national_id"
	IdentifyingKindPassportNumber    = "passport_number"
)

// Closed sub-kinds for AttributeCategoryPhysical.
const (
	PhysicalKindHeight    = "height"
	PhysicalKindWeight    = "weight"
	PhysicalKindEyeColor  = "eye_color"
	PhysicalKindHairColor = "hair_color"
)

// Closed sub-kinds for AttributeCategoryHealthcare.
const (
	HealthcareKindBloodType      = "blood_type"
	HealthcareKindAllergy        = "allergy"
	HealthcareKindCondition      = "condition"
	HealthcareKindImmunization   = "immunization"
)

// Closed sub-kinds for AttributeCategoryDemographic.
const (
	DemographicKindNationality     = "nationality"
	DemographicKindMaritalStatus   = "marital_status"
	DemographicKindOccupation      = "occupation"
	DemographicKindEducationLevel  = "education_level"
)

var closedKinds = map[AttributeCategory]map[string]struct{}{
	AttributeCategoryIdentifying: {
		IdentifyingKindFormerLegalName: {},
		IdentifyingKindPreferredName:   {},
		IdentifyingKindNationalID:      {},
		IdentifyingKindPassportNumber:  {},
	},
	AttributeCategoryPhysical: {
		PhysicalKindHeight:    {},
		PhysicalKindWeight:    {},
		PhysicalKindEyeColor:  {},
		PhysicalKindHairColor: {},
	},
	AttributeCategoryHealthcare: {
		HealthcareKindBloodType:    {},
		HealthcareKindAllergy:      {},
		HealthcareKindCondition:    {},
		HealthcareKindImmunization: {},
	},
	AttributeCategoryDemographic: {
		DemographicKindNationality:    {},
		DemographicKindMaritalStatus:  {},
		DemographicKindOccupation:     {},
		DemographicKindEducationLevel: {},
	},
}

// NewAttributeType constructs and validates a closed-category attribute
// type (Identifying, Physical, Healthcare, Demographic).
//
// Use NewCustomAttributeType for AttributeCategoryCustom.
func NewAttributeType(category AttributeCategory, kind string) (AttributeType, error) {
	kinds, ok := closedKinds[category]
	if !ok {
		return AttributeType{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	if _, ok := kinds[kind]; !ok {
		return AttributeType{}, fmt.Errorf("%w: %s.%s", ErrUnknownCategory, category, kind)
	}

	return AttributeType{Category: category, Kind: kind}, nil
}

// NewCustomAttributeType constructs a Custom attribute type identified by
// a namespace-qualified free-form key. The key is canonicalized via
// CanonicalizeCustomKey so that identity-pair comparisons are stable
// across differently-cased namespaces from different recording systems.
func NewCustomAttributeType(namespace, name string) (AttributeType, error) {
	if name == "" {
		return AttributeType{}, ErrEmptyCustomKey
	}

	return AttributeType{
		Category:  AttributeCategoryCustom,
		CustomKey: CanonicalizeCustomKey(namespace, name),
	}, nil
}

// Equal reports structural equality of two attribute types.
func (t AttributeType) Equal(other AttributeType) bool {
	return t.Category == other.Category && t.Kind == other.Kind && t.CustomKey == other.CustomKey
}

// String renders a stable key for the attribute type, suitable for use
// in identity-pair map keys and serialization.
func (t AttributeType) String() string {
	if t.Category == AttributeCategoryCustom {
		return string(t.Category) + ":" + t.CustomKey
	}

	return string(t.Category) + ":" + t.Kind
}
