package person

import (
	"encoding/json"
	"fmt"
	"time"
)

// union is the canonical wire shape for every discriminated sum in this
// package: a stable {tag, payload} envelope rather than a flat struct
// with optional fields, so that decoders can dispatch on tag without
// guessing which fields are meaningful.
type union struct {
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON renders AttributeType as {"tag": category, "payload": {...}}.
func (t AttributeType) MarshalJSON() ([]byte, error) {
	var payload any

	switch t.Category {
	case AttributeCategoryCustom:
		payload = struct {
			Key string `json:"key"`
		}{Key: t.CustomKey}
	default:
		payload = struct {
			Kind string `json:"kind"`
		}{Kind: t.Kind}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal attribute type payload: %w", err)
	}

	return json.Marshal(union{Tag: string(t.Category), Payload: raw})
}

// UnmarshalJSON parses the {tag, payload} shape produced by MarshalJSON.
func (t *AttributeType) UnmarshalJSON(data []byte) error {
	var u union
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("unmarshal attribute type envelope: %w", err)
	}

	category := AttributeCategory(u.Tag)

	if category == AttributeCategoryCustom {
		var payload struct {
			Key string `json:"key"`
		}

		if err := json.Unmarshal(u.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal custom attribute payload: %w", err)
		}

		t.Category = category
		t.CustomKey = payload.Key

		return nil
	}

	var payload struct {
		Kind string `json:"kind"`
	}

	if err := json.Unmarshal(u.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal attribute type payload: %w", err)
	}

	built, err := NewAttributeType(category, payload.Kind)
	if err != nil {
		return err
	}

	*t = built

	return nil
}

// payload maps each ValueKind to the shape its payload takes on the
// wire.
func (v AttributeValue) payload() any {
	switch v.Kind {
	case ValueKindText:
		return v.Text
	case ValueKindInteger:
		return v.Integer
	case ValueKindReal:
		return v.Real
	case ValueKindBool:
		return v.Bool
	case ValueKindDate:
		return v.Date.Format("2006-01-02")
	case ValueKindTimestamp:
		return v.Timestamp.Format(time.RFC3339Nano)
	case ValueKindLength:
		return v.LengthMeters
	case ValueKindMass:
		return v.MassKilograms
	case ValueKindCodedEnum:
		return v.CodedEnum
	case ValueKindStructured:
		return v.Structured
	default:
		return nil
	}
}

// MarshalJSON renders AttributeValue as {"tag": kind, "payload": ...}.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(v.payload())
	if err != nil {
		return nil, fmt.Errorf("marshal attribute value payload: %w", err)
	}

	return json.Marshal(union{Tag: string(v.Kind), Payload: raw})
}

// UnmarshalJSON parses the {tag, payload} shape produced by MarshalJSON.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var u union
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("unmarshal attribute value envelope: %w", err)
	}

	kind := ValueKind(u.Tag)

	switch kind {
	case ValueKindText:
		var s string
		if err := json.Unmarshal(u.Payload, &s); err != nil {
			return err
		}

		*v = TextValue(s)
	case ValueKindInteger:
		var i int64
		if err := json.Unmarshal(u.Payload, &i); err != nil {
			return err
		}

		*v = IntegerValue(i)
	case ValueKindReal:
		var f float64
		if err := json.Unmarshal(u.Payload, &f); err != nil {
			return err
		}

		*v = RealValue(f)
	case ValueKindBool:
		var b bool
		if err := json.Unmarshal(u.Payload, &b); err != nil {
			return err
		}

		*v = BoolValue(b)
	case ValueKindDate:
		var s string
		if err := json.Unmarshal(u.Payload, &s); err != nil {
			return err
		}

		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return fmt.Errorf("parse date value: %w", err)
		}

		*v = DateValue(parsed)
	case ValueKindTimestamp:
		var s string
		if err := json.Unmarshal(u.Payload, &s); err != nil {
			return err
		}

		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp value: %w", err)
		}

		*v = TimestampValue(parsed)
	case ValueKindLength:
		var f float64
		if err := json.Unmarshal(u.Payload, &f); err != nil {
			return err
		}

		*v = LengthValue(f)
	case ValueKindMass:
		var f float64
		if err := json.Unmarshal(u.Payload, &f); err != nil {
			return err
		}

		*v = MassValue(f)
	case ValueKindCodedEnum:
		var c CodedEnumValue
		if err := json.Unmarshal(u.Payload, &c); err != nil {
			return err
		}

		*v = CodedEnumAttributeValue(c.Namespace, c.Code)
	case ValueKindStructured:
		var m map[string]any
		if err := json.Unmarshal(u.Payload, &m); err != nil {
			return err
		}

		*v = StructuredValue(m)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownValueKind, u.Tag)
	}

	return nil
}

// MarshalJSON renders Lifecycle as {"tag": state, "payload": {...}}.
func (l Lifecycle) MarshalJSON() ([]byte, error) {
	var payload any

	switch l.State {
	case LifecycleDeactivated:
		payload = struct {
			Reason string    `json:"reason"`
			At     time.Time `json:"at"`
		}{l.DeactivatedReason, l.DeactivatedAt}
	case LifecycleDeceased:
		payload = struct {
			Date time.Time `json:"date"`
		}{l.DeceasedDate}
	case LifecycleMerged:
		payload = struct {
			Into ID        `json:"into"`
			At   time.Time `json:"at"`
		}{l.MergedInto, l.MergedAt}
	default:
		payload = struct{}{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal lifecycle payload: %w", err)
	}

	return json.Marshal(union{Tag: string(l.State), Payload: raw})
}

// UnmarshalJSON parses the {tag, payload} shape produced by MarshalJSON.
func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	var u union
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("unmarshal lifecycle envelope: %w", err)
	}

	state := LifecycleState(u.Tag)

	switch state {
	case LifecycleActive:
		*l = ActiveLifecycle()
	case LifecycleDeactivated:
		var payload struct {
			Reason string    `json:"reason"`
			At     time.Time `json:"at"`
		}

		if err := json.Unmarshal(u.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal deactivated payload: %w", err)
		}

		*l = DeactivatedLifecycle(payload.Reason, payload.At)
	case LifecycleDeceased:
		var payload struct {
			Date time.Time `json:"date"`
		}

		if err := json.Unmarshal(u.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal deceased payload: %w", err)
		}

		*l = DeceasedLifecycle(payload.Date)
	case LifecycleMerged:
		var payload struct {
			Into ID        `json:"into"`
			At   time.Time `json:"at"`
		}

		if err := json.Unmarshal(u.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal merged payload: %w", err)
		}

		*l = MergedLifecycle(payload.Into, payload.At)
	default:
		return fmt.Errorf("unmarshal lifecycle: unknown state %q", u.Tag)
	}

	return nil
}

// MarshalJSON renders AttributeSet as its insertion-ordered row list.
// The unexported index map is derivable from the rows and is rebuilt
// on unmarshal rather than serialized.
func (s AttributeSet) MarshalJSON() ([]byte, error) {
	rows := s.All()
	if rows == nil {
		rows = []PersonAttribute{}
	}

	return json.Marshal(rows)
}

// UnmarshalJSON rebuilds an AttributeSet from the row list produced by
// MarshalJSON, replaying Upsert in order to restore the identity
// index.
func (s *AttributeSet) UnmarshalJSON(data []byte) error {
	var rows []PersonAttribute
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("unmarshal attribute set: %w", err)
	}

	set := NewAttributeSet()
	for _, row := range rows {
		set = set.Upsert(row)
	}

	*s = set

	return nil
}
