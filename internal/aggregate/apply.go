package aggregate

import (
	"fmt"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// Apply folds one event into state, returning the resulting state. It
// is pure and total given an event that decide actually produced for
// this aggregate's own history; an event that references a nonexistent
// aggregate, or a PersonCreated for an aggregate that already exists,
// is a corrupt stream and is reported as such rather than silently
// accepted.
func Apply(state *person.Person, event personevent.Event) (*person.Person, error) {
	created, isCreate := event.(personevent.PersonCreated)

	if isCreate {
		if state != nil {
			return nil, New(KindCorrupt, fmt.Sprintf("PersonCreated applied to existing aggregate %s", created.PersonID))
		}

		identity, err := person.NewCoreIdentity(created.Name, nil, nil, created.At, created.At)
		if err != nil {
			return nil, Wrap(KindCorrupt, "PersonCreated carries an invalid name", err)
		}

		return &person.Person{
			ID:           created.PersonID,
			CoreIdentity: identity,
			Attributes:   person.NewAttributeSet(),
			Lifecycle:    person.ActiveLifecycle(),
			Version:      1,
		}, nil
	}

	if state == nil {
		return nil, New(KindCorrupt, fmt.Sprintf("%s applied with no prior PersonCreated", event.EventKind()))
	}

	next := *state
	next.Version = state.Version + 1

	switch e := event.(type) {
	case personevent.NameUpdated:
		next.CoreIdentity.LegalName = e.NewName
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.AttributeRecorded:
		next.Attributes = state.Attributes.Upsert(e.Attribute)
		next.CoreIdentity.UpdatedAt = e.Attribute.Temporal.RecordedAt

	case personevent.AttributeUpdated:
		existing, ok := state.Attributes.Get(e.IdentityPair)
		if !ok {
			return nil, New(KindCorrupt, fmt.Sprintf("AttributeUpdated references unknown identity pair %s", e.IdentityPair.Type))
		}

		updated := existing
		updated.Value = e.NewValue
		updated.Provenance = e.NewProvenance
		next.Attributes = state.Attributes.Upsert(updated)
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.AttributeInvalidated:
		existing, ok := state.Attributes.Get(e.IdentityPair)
		if !ok {
			return nil, New(KindCorrupt, fmt.Sprintf("AttributeInvalidated references unknown identity pair %s", e.IdentityPair.Type))
		}

		updated := existing
		updated.Temporal = existing.Temporal.WithValidUntil(e.At)
		next.Attributes = state.Attributes.Upsert(updated)
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.PersonDeactivated:
		next.Lifecycle = person.DeactivatedLifecycle(e.Reason, e.At)
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.PersonReactivated:
		next.Lifecycle = person.ActiveLifecycle()
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.PersonDeceased:
		next.Lifecycle = person.DeceasedLifecycle(e.Date)
		deathDate := e.Date
		next.CoreIdentity.DeathDate = &deathDate
		next.CoreIdentity.UpdatedAt = e.At

	case personevent.PersonMerged:
		next.Lifecycle = person.MergedLifecycle(e.Into, e.At)
		next.CoreIdentity.UpdatedAt = e.At

	default:
		return nil, New(KindCorrupt, fmt.Sprintf("unhandled event type %T", event))
	}

	return &next, nil
}
