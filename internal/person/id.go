package person

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is an opaque, globally unique identifier for a person aggregate.
//
// It is backed by a time-ordered UUIDv7 so that two ids minted close in
// time sort close together, which in turn lets events that reference a
// person's id sort naturally alongside other aggregates' events when
// stored in an append-only log ordered by id.
type ID struct {
	value uuid.UUID
}

// NewID mints a fresh, time-ordered person id.
func NewID() (ID, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("generate person id: %w", err)
	}

	return ID{value: v}, nil
}

// ParseID parses the stable text form of a person id produced by String.
func ParseID(s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %w", ErrEmptyPersonID, err)
	}

	if v == uuid.Nil {
		return ID{}, ErrEmptyPersonID
	}

	return ID{value: v}, nil
}

// MustParseID parses s and panics on error. Intended for tests and
// compile-time-known identifiers only.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}

	return id
}

// String returns the stable text form of the id.
func (id ID) String() string {
	return id.value.String()
}

// IsZero reports whether id is the zero value (not a valid person id).
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal reports whether two ids are structurally equal.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}

// MarshalJSON renders the id as its canonical string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value.String() + `"`), nil
}

// UnmarshalJSON parses the canonical string form produced by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: malformed json", ErrEmptyPersonID)
	}

	parsed, err := ParseID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}
