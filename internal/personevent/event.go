package personevent

import (
	"time"

	"github.com/persondomain/persond/internal/person"
)

// EventKind tags which concrete event a Event value carries.
type EventKind string

// The closed set of event kinds.
const (
	EventKindPersonCreated        EventKind = "PersonCreated"
	EventKindNameUpdated          EventKind = "NameUpdated"
	EventKindAttributeRecorded    EventKind = "AttributeRecorded"
	EventKindAttributeUpdated     EventKind = "AttributeUpdated"
	EventKindAttributeInvalidated EventKind = "AttributeInvalidated"
	EventKindPersonDeactivated    EventKind = "PersonDeactivated"
	EventKindPersonReactivated    EventKind = "PersonReactivated"
	EventKindPersonDeceased       EventKind = "PersonDeceased"
	EventKindPersonMerged         EventKind = "PersonMerged"
)

// Event is implemented by every concrete event type.
type Event interface {
	EventKind() EventKind
	AggregateID() person.ID
}

type (
	// PersonCreated records the birth of an aggregate.
	PersonCreated struct {
		PersonID person.ID
		Name     person.PersonName
		At       time.Time
		Source   string
	}

	// NameUpdated records a legal name change.
	NameUpdated struct {
		PersonID person.ID
		OldName  person.PersonName
		NewName  person.PersonName
		At       time.Time
		Reason   string
	}

	// AttributeRecorded records a newly-observed attribute.
	AttributeRecorded struct {
		PersonID  person.ID
		Attribute person.PersonAttribute
	}

	// AttributeUpdated records a change to an existing attribute's value
	// and/or provenance.
	AttributeUpdated struct {
		PersonID      person.ID
		IdentityPair  person.AttributeIdentity
		OldValue      person.AttributeValue
		NewValue      person.AttributeValue
		NewProvenance person.Provenance
		At            time.Time
	}

	// AttributeInvalidated records the closing of an attribute's
	// validity interval.
	AttributeInvalidated struct {
		PersonID     person.ID
		IdentityPair person.AttributeIdentity
		At           time.Time
		Reason       string
	}

	// PersonDeactivated records an Active -> Deactivated transition.
	PersonDeactivated struct {
		PersonID person.ID
		Reason   string
		At       time.Time
	}

	// PersonReactivated records a Deactivated -> Active transition.
	PersonReactivated struct {
		PersonID person.ID
		At       time.Time
	}

	// PersonDeceased records a transition to the terminal Deceased state.
	PersonDeceased struct {
		PersonID person.ID
		Date     time.Time
		At       time.Time
	}

	// PersonMerged records a transition to the terminal Merged state.
	PersonMerged struct {
		PersonID person.ID
		Into     person.ID
		At       time.Time
		Reason   string
	}
)

// EventKind implementations.
func (PersonCreated) EventKind() EventKind        { return EventKindPersonCreated }
func (NameUpdated) EventKind() EventKind          { return EventKindNameUpdated }
func (AttributeRecorded) EventKind() EventKind    { return EventKindAttributeRecorded }
func (AttributeUpdated) EventKind() EventKind     { return EventKindAttributeUpdated }
func (AttributeInvalidated) EventKind() EventKind { return EventKindAttributeInvalidated }
func (PersonDeactivated) EventKind() EventKind    { return EventKindPersonDeactivated }
func (PersonReactivated) EventKind() EventKind    { return EventKindPersonReactivated }
func (PersonDeceased) EventKind() EventKind       { return EventKindPersonDeceased }
func (PersonMerged) EventKind() EventKind         { return EventKindPersonMerged }

// AggregateID implementations.
func (e PersonCreated) AggregateID() person.ID        { return e.PersonID }
func (e NameUpdated) AggregateID() person.ID          { return e.PersonID }
func (e AttributeRecorded) AggregateID() person.ID    { return e.PersonID }
func (e AttributeUpdated) AggregateID() person.ID     { return e.PersonID }
func (e AttributeInvalidated) AggregateID() person.ID { return e.PersonID }
func (e PersonDeactivated) AggregateID() person.ID    { return e.PersonID }
func (e PersonReactivated) AggregateID() person.ID    { return e.PersonID }
func (e PersonDeceased) AggregateID() person.ID       { return e.PersonID }
func (e PersonMerged) AggregateID() person.ID         { return e.PersonID }
