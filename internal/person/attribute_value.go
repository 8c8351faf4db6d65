package person

import (
	"fmt"
	"time"
)

type (
	// ValueKind discriminates which field of AttributeValue is populated.
	ValueKind string

	// CodedEnumValue is a value drawn from an external coding system
	// (e.g. ISO-3166 country codes, SNOMED CT clinical codes).
	CodedEnumValue struct {
		Namespace string
		Code      string
	}

	// AttributeValue is a discriminated sum over the value shapes a
	// PersonAttribute can carry. Unit-bearing variants (Length, Mass)
	// carry SI base units; unit conversion is a presentation-layer
	// concern outside this core.
	AttributeValue struct {
		Kind ValueKind

		Text          string
		Integer       int64
		Real          float64
		Bool          bool
		Date          time.Time
		Timestamp     time.Time
		LengthMeters  float64
		MassKilograms float64
		CodedEnum     CodedEnumValue
		Structured    map[string]any
	}
)

// Value kinds.
const (
	ValueKindText      ValueKind = "text"
	ValueKindInteger   ValueKind = "integer"
	ValueKindReal      ValueKind = "real"
	ValueKindBool      ValueKind = "bool"
	ValueKindDate      ValueKind = "date"
	ValueKindTimestamp ValueKind = "timestamp"
	ValueKindLength    ValueKind = "length"
	ValueKindMass      ValueKind = "mass"
	ValueKindCodedEnum ValueKind = "coded_enum"
	ValueKindStructured ValueKind = "structured"
)

// TextValue constructs a Text AttributeValue.
func TextValue(v string) AttributeValue { return AttributeValue{Kind: ValueKindText, Text: v} }

// IntegerValue constructs an Integer AttributeValue.
func IntegerValue(v int64) AttributeValue { return AttributeValue{Kind: ValueKindInteger, Integer: v} }

// RealValue constructs a Real AttributeValue.
func RealValue(v float64) AttributeValue { return AttributeValue{Kind: ValueKindReal, Real: v} }

// BoolValue constructs a Bool AttributeValue.
func BoolValue(v bool) AttributeValue { return AttributeValue{Kind: ValueKindBool, Bool: v} }

// DateValue constructs a Date AttributeValue.
func DateValue(v time.Time) AttributeValue { return AttributeValue{Kind: ValueKindDate, Date: v} }

// TimestampValue constructs a Timestamp AttributeValue.
func TimestampValue(v time.Time) AttributeValue {
	return AttributeValue{Kind: ValueKindTimestamp, Timestamp: v}
}

// LengthValue constructs a Length AttributeValue, in meters.
func LengthValue(meters float64) AttributeValue {
	return AttributeValue{Kind: ValueKindLength, LengthMeters: meters}
}

// MassValue constructs a Mass AttributeValue, in kilograms.
func MassValue(kilograms float64) AttributeValue {
	return AttributeValue{Kind: ValueKindMass, MassKilograms: kilograms}
}

// CodedEnumAttributeValue constructs a CodedEnum AttributeValue.
func CodedEnumAttributeValue(namespace, code string) AttributeValue {
	return AttributeValue{Kind: ValueKindCodedEnum, CodedEnum: CodedEnumValue{Namespace: namespace, Code: code}}
}

// StructuredValue constructs a Structured AttributeValue from a nested map.
func StructuredValue(v map[string]any) AttributeValue {
	return AttributeValue{Kind: ValueKindStructured, Structured: v}
}

// Validate checks that Kind is one of the known value kinds.
func (v AttributeValue) Validate() error {
	switch v.Kind {
	case ValueKindText, ValueKindInteger, ValueKindReal, ValueKindBool, ValueKindDate,
		ValueKindTimestamp, ValueKindLength, ValueKindMass, ValueKindCodedEnum, ValueKindStructured:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownValueKind, v.Kind)
	}
}

// Equal reports full structural equality, used for idempotence checks
// (e.g. RecordAttribute with an identical value is a no-op).
func (v AttributeValue) Equal(other AttributeValue) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case ValueKindText:
		return v.Text == other.Text
	case ValueKindInteger:
		return v.Integer == other.Integer
	case ValueKindReal:
		return v.Real == other.Real
	case ValueKindBool:
		return v.Bool == other.Bool
	case ValueKindDate:
		return v.Date.Equal(other.Date)
	case ValueKindTimestamp:
		return v.Timestamp.Equal(other.Timestamp)
	case ValueKindLength:
		return v.LengthMeters == other.LengthMeters
	case ValueKindMass:
		return v.MassKilograms == other.MassKilograms
	case ValueKindCodedEnum:
		return v.CodedEnum == other.CodedEnum
	case ValueKindStructured:
		return structuredEqual(v.Structured, other.Structured)
	default:
		return false
	}
}

func structuredEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}

	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}

	return true
}
