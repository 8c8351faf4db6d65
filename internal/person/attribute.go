package person

import "time"

type (
	// AttributeIdentity is the pair that identifies a PersonAttribute for
	// update/conflict purposes: (attribute_type, valid_from). Two
	// attributes with the same identity pair conflict; attributes that
	// share an AttributeType but differ in ValidFrom are distinct rows.
	AttributeIdentity struct {
		Type      AttributeType
		ValidFrom time.Time // zero time represents an unset valid_from
	}

	// PersonAttribute is a single EAV row: a typed value, its temporal
	// validity, and its provenance.
	PersonAttribute struct {
		AttributeType AttributeType
		Value         AttributeValue
		Temporal      TemporalValidity
		Provenance    Provenance
	}
)

// Identity returns the (attribute_type, valid_from) pair that identifies
// this attribute for record/update conflict resolution.
func (a PersonAttribute) Identity() AttributeIdentity {
	id := AttributeIdentity{Type: a.AttributeType}
	if a.Temporal.ValidFrom != nil {
		id.ValidFrom = *a.Temporal.ValidFrom
	}

	return id
}

// key renders a stable, comparable map key for an AttributeIdentity.
func (id AttributeIdentity) key() string {
	return id.Type.String() + "@" + id.ValidFrom.UTC().Format(time.RFC3339Nano)
}

// Equal reports full structural equality, used to detect idempotent
// re-recording of an attribute (same identity, same value, same
// provenance).
func (a PersonAttribute) Equal(other PersonAttribute) bool {
	return a.AttributeType.Equal(other.AttributeType) &&
		a.Value.Equal(other.Value) &&
		a.Temporal.Equal(other.Temporal) &&
		a.Provenance.Equal(other.Provenance)
}
