// Package personevent defines the closed command and event algebra for
// the person aggregate, and the wire envelope and codec used to move
// them across the message bus.
package personevent

import (
	"time"

	"github.com/persondomain/persond/internal/person"
)

// CommandKind tags which concrete command a Command value carries.
type CommandKind string

// The closed set of command kinds.
const (
	CommandKindCreatePerson       CommandKind = "CreatePerson"
	CommandKindUpdateName         CommandKind = "UpdateName"
	CommandKindRecordAttribute    CommandKind = "RecordAttribute"
	CommandKindUpdateAttribute    CommandKind = "UpdateAttribute"
	CommandKindInvalidateAttribute CommandKind = "InvalidateAttribute"
	CommandKindDeactivatePerson   CommandKind = "DeactivatePerson"
	CommandKindReactivatePerson   CommandKind = "ReactivatePerson"
	CommandKindRecordDeath        CommandKind = "RecordDeath"
	CommandKindMergePerson        CommandKind = "MergePerson"
)

// Command is implemented by every concrete command type. AggregateID
// identifies the person the command targets, used by the dispatcher to
// serialize concurrent commands per aggregate.
type Command interface {
	CommandKind() CommandKind
	AggregateID() person.ID
}

type (
	// CreatePerson creates a new person aggregate.
	CreatePerson struct {
		PersonID person.ID
		Name     person.PersonName
		Source   string
	}

	// UpdateName changes a person's legal name.
	UpdateName struct {
		PersonID person.ID
		NewName  person.PersonName
		Reason   string
	}

	// RecordAttribute records a new attribute, identified by
	// (attribute_type, valid_from), on a person.
	RecordAttribute struct {
		PersonID  person.ID
		Attribute person.PersonAttribute
	}

	// UpdateAttribute changes the value and/or provenance of an
	// existing attribute, identified by IdentityPair.
	UpdateAttribute struct {
		PersonID      person.ID
		IdentityPair  person.AttributeIdentity
		NewValue      person.AttributeValue
		NewProvenance person.Provenance
	}

	// InvalidateAttribute closes out the validity interval of an
	// existing attribute as of At.
	InvalidateAttribute struct {
		PersonID     person.ID
		IdentityPair person.AttributeIdentity
		At           time.Time
		Reason       string
	}

	// DeactivatePerson transitions a person from Active to Deactivated.
	DeactivatePerson struct {
		PersonID person.ID
		Reason   string
	}

	// ReactivatePerson transitions a person from Deactivated to Active.
	ReactivatePerson struct {
		PersonID person.ID
	}

	// RecordDeath transitions a person to Deceased.
	RecordDeath struct {
		PersonID person.ID
		Date     time.Time
	}

	// MergePerson transitions a person to Merged, folding it into Into.
	MergePerson struct {
		PersonID person.ID
		Into     person.ID
		Reason   string
	}
)

// CommandKind implementations.
func (CreatePerson) CommandKind() CommandKind         { return CommandKindCreatePerson }
func (UpdateName) CommandKind() CommandKind           { return CommandKindUpdateName }
func (RecordAttribute) CommandKind() CommandKind      { return CommandKindRecordAttribute }
func (UpdateAttribute) CommandKind() CommandKind      { return CommandKindUpdateAttribute }
func (InvalidateAttribute) CommandKind() CommandKind  { return CommandKindInvalidateAttribute }
func (DeactivatePerson) CommandKind() CommandKind     { return CommandKindDeactivatePerson }
func (ReactivatePerson) CommandKind() CommandKind     { return CommandKindReactivatePerson }
func (RecordDeath) CommandKind() CommandKind          { return CommandKindRecordDeath }
func (MergePerson) CommandKind() CommandKind          { return CommandKindMergePerson }

// AggregateID implementations.
func (c CreatePerson) AggregateID() person.ID         { return c.PersonID }
func (c UpdateName) AggregateID() person.ID           { return c.PersonID }
func (c RecordAttribute) AggregateID() person.ID      { return c.PersonID }
func (c UpdateAttribute) AggregateID() person.ID      { return c.PersonID }
func (c InvalidateAttribute) AggregateID() person.ID  { return c.PersonID }
func (c DeactivatePerson) AggregateID() person.ID     { return c.PersonID }
func (c ReactivatePerson) AggregateID() person.ID     { return c.PersonID }
func (c RecordDeath) AggregateID() person.ID          { return c.PersonID }
func (c MergePerson) AggregateID() person.ID          { return c.PersonID }
