package person

import "time"

// AttributeSet is an insertion-ordered sequence of PersonAttribute rows
// keyed by identity pair (attribute_type, valid_from). Upsert replaces
// an existing row with the same identity in place, preserving its
// original position; a new identity is appended.
//
// Attributes are not modeled as a map keyed by type alone: a person can
// carry multiple values of the same attribute type at different
// validity intervals, and that is the point of the EAV design.
type AttributeSet struct {
	rows  []PersonAttribute
	index map[string]int // identity key -> index into rows
}

// NewAttributeSet constructs an empty attribute set.
func NewAttributeSet() AttributeSet {
	return AttributeSet{index: make(map[string]int)}
}

// Get returns the attribute at the given identity, if present.
func (s AttributeSet) Get(id AttributeIdentity) (PersonAttribute, bool) {
	i, ok := s.index[id.key()]
	if !ok {
		return PersonAttribute{}, false
	}

	return s.rows[i], true
}

// Upsert inserts a new attribute or replaces an existing one sharing its
// identity pair. Returns the updated set (AttributeSet is a value type
// with copy-on-write semantics over its backing slice).
func (s AttributeSet) Upsert(attr PersonAttribute) AttributeSet {
	key := attr.Identity().key()

	if i, ok := s.index[key]; ok {
		rows := append([]PersonAttribute(nil), s.rows...)
		rows[i] = attr

		return AttributeSet{rows: rows, index: s.index}
	}

	rows := append(append([]PersonAttribute(nil), s.rows...), attr)
	index := make(map[string]int, len(s.index)+1)

	for k, v := range s.index {
		index[k] = v
	}

	index[key] = len(rows) - 1

	return AttributeSet{rows: rows, index: index}
}

// All returns the attributes in insertion order. The returned slice must
// not be mutated by the caller.
func (s AttributeSet) All() []PersonAttribute {
	return s.rows
}

// Len returns the number of attributes in the set.
func (s AttributeSet) Len() int {
	return len(s.rows)
}

// ByCategory returns, in insertion order, the attributes whose type
// belongs to category.
func (s AttributeSet) ByCategory(category AttributeCategory) []PersonAttribute {
	out := make([]PersonAttribute, 0, len(s.rows))

	for _, a := range s.rows {
		if a.AttributeType.Category == category {
			out = append(out, a)
		}
	}

	return out
}

// ValidAt returns, in insertion order, the attributes currently valid at
// the given instant.
func (s AttributeSet) ValidAt(at time.Time) []PersonAttribute {
	out := make([]PersonAttribute, 0, len(s.rows))

	for _, a := range s.rows {
		if a.Temporal.CurrentlyValidAt(at) {
			out = append(out, a)
		}
	}

	return out
}
