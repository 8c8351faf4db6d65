package person

import "time"

// TemporalValidity records when an attribute was recorded and the
// interval over which its value is considered true of the person.
type TemporalValidity struct {
	RecordedAt  time.Time
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// NewTemporalValidity validates and constructs a TemporalValidity.
func NewTemporalValidity(recordedAt time.Time, validFrom, validUntil *time.Time) (TemporalValidity, error) {
	t := TemporalValidity{RecordedAt: recordedAt, ValidFrom: validFrom, ValidUntil: validUntil}

	if err := t.Validate(); err != nil {
		return TemporalValidity{}, err
	}

	return t, nil
}

// Validate enforces valid_from <= valid_until when both are present.
func (t TemporalValidity) Validate() error {
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidFrom.After(*t.ValidUntil) {
		return ErrInvalidTemporalRange
	}

	return nil
}

// CurrentlyValidAt reports whether the interval covers instant at:
// (valid_from <= at or unset) and (valid_until > at or unset).
func (t TemporalValidity) CurrentlyValidAt(at time.Time) bool {
	if t.ValidFrom != nil && at.Before(*t.ValidFrom) {
		return false
	}

	if t.ValidUntil != nil && !at.Before(*t.ValidUntil) {
		return false
	}

	return true
}

// WithValidUntil returns a copy of t with ValidUntil set to at. Used by
// InvalidateAttribute to close out a currently-valid interval.
func (t TemporalValidity) WithValidUntil(at time.Time) TemporalValidity {
	t.ValidUntil = &at

	return t
}

// Equal reports structural equality, comparing pointer fields by value
// rather than by address.
func (t TemporalValidity) Equal(other TemporalValidity) bool {
	return t.RecordedAt.Equal(other.RecordedAt) &&
		timePtrEqual(t.ValidFrom, other.ValidFrom) &&
		timePtrEqual(t.ValidUntil, other.ValidUntil)
}

func timePtrEqual(a, b *time.Time) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	if a == nil {
		return true
	}

	return a.Equal(*b)
}
