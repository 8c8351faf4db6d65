// Package person provides the Person aggregate's value types and invariants.
package person

import "errors"

// Sentinel errors for value-type construction failures.
// These wrap into ValidationError via fmt.Errorf("%w: ...") at call sites
// and can be checked with errors.Is.
var (
	// ErrEmptyName indicates a PersonName with no non-empty name part.
	ErrEmptyName = errors.New("person name must have at least one non-empty part")

	// ErrControlCharacter indicates a string value-type field contains a control character.
	ErrControlCharacter = errors.New("value contains a control character")

	// ErrDeathBeforeBirth indicates CoreIdentity.DeathDate precedes BirthDate.
	ErrDeathBeforeBirth = errors.New("death date precedes birth date")

	// ErrUpdatedBeforeCreated indicates CoreIdentity.UpdatedAt precedes CreatedAt.
	ErrUpdatedBeforeCreated = errors.New("updated_at precedes created_at")

	// ErrInvalidTemporalRange indicates TemporalValidity.ValidFrom is after ValidUntil.
	ErrInvalidTemporalRange = errors.New("valid_from must not be after valid_until")

	// ErrUnknownCategory indicates an AttributeType with an unrecognized category.
	ErrUnknownCategory = errors.New("unknown attribute category")

	// ErrEmptyCustomKey indicates a Custom attribute type with an empty key.
	ErrEmptyCustomKey = errors.New("custom attribute key cannot be empty")

	// ErrUnknownValueKind indicates an AttributeValue with an unrecognized kind.
	ErrUnknownValueKind = errors.New("unknown attribute value kind")

	// ErrEmptyPersonID indicates a PersonId constructed from an empty/zero UUID.
	ErrEmptyPersonID = errors.New("person id cannot be empty")
)
