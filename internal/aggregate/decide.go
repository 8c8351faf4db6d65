package aggregate

import (
	"fmt"
	"time"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// Decide is the aggregate's pure transition function. state is nil when
// no aggregate exists yet. Decide never panics: every rejection is a
// *DomainError. The returned slice is nil (not empty-but-non-nil) when
// the command is a no-op under the current state, which callers treat
// as result=NoChange rather than as an error.
func Decide(state *person.Person, cmd personevent.Command, now time.Time) ([]personevent.Event, error) {
	if state == nil {
		create, ok := cmd.(personevent.CreatePerson)
		if !ok {
			return nil, New(KindNotFound, fmt.Sprintf("aggregate %s does not exist", cmd.AggregateID()))
		}

		return []personevent.Event{
			personevent.PersonCreated{
				PersonID: create.PersonID,
				Name:     create.Name,
				At:       now,
				Source:   create.Source,
			},
		}, nil
	}

	switch c := cmd.(type) {
	case personevent.CreatePerson:
		return nil, New(KindConflictAlreadyExists, fmt.Sprintf("person %s already exists", c.PersonID))

	case personevent.UpdateName:
		return decideUpdateName(state, c, now)

	case personevent.RecordAttribute:
		return decideRecordAttribute(state, c)

	case personevent.UpdateAttribute:
		return decideUpdateAttribute(state, c, now)

	case personevent.InvalidateAttribute:
		return decideInvalidateAttribute(state, c)

	case personevent.DeactivatePerson:
		return decideDeactivatePerson(state, c, now)

	case personevent.ReactivatePerson:
		return decideReactivatePerson(state, c, now)

	case personevent.RecordDeath:
		return decideRecordDeath(state, c, now)

	case personevent.MergePerson:
		return decideMergePerson(state, c, now)

	default:
		return nil, New(KindInternal, fmt.Sprintf("unhandled command type %T", cmd))
	}
}

func decideUpdateName(state *person.Person, c personevent.UpdateName, now time.Time) ([]personevent.Event, error) {
	if state.Lifecycle.IsTerminalForWrites() {
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}

	if state.CoreIdentity.LegalName.Equal(c.NewName) {
		return nil, nil
	}

	return []personevent.Event{
		personevent.NameUpdated{
			PersonID: c.PersonID,
			OldName:  state.CoreIdentity.LegalName,
			NewName:  c.NewName,
			At:       now,
			Reason:   c.Reason,
		},
	}, nil
}

func decideRecordAttribute(state *person.Person, c personevent.RecordAttribute) ([]personevent.Event, error) {
	if state.Lifecycle.IsTerminalForWrites() && c.Attribute.Provenance.Source != person.AttributeSourceDerived {
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}

	existing, ok := state.Attributes.Get(c.Attribute.Identity())
	if !ok {
		return []personevent.Event{
			personevent.AttributeRecorded{PersonID: c.PersonID, Attribute: c.Attribute},
		}, nil
	}

	if existing.Equal(c.Attribute) {
		return nil, nil
	}

	return nil, New(KindConflictUseUpdate, "attribute already recorded with a different value or provenance; use UpdateAttribute")
}

func decideUpdateAttribute(state *person.Person, c personevent.UpdateAttribute, now time.Time) ([]personevent.Event, error) {
	if state.Lifecycle.IsTerminalForWrites() && c.NewProvenance.Source != person.AttributeSourceDerived {
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}

	existing, ok := state.Attributes.Get(c.IdentityPair)
	if !ok {
		return nil, New(KindNotFound, fmt.Sprintf("attribute %s not found", c.IdentityPair.Type))
	}

	if existing.Value.Equal(c.NewValue) && existing.Provenance.Equal(c.NewProvenance) {
		return nil, nil
	}

	return []personevent.Event{
		personevent.AttributeUpdated{
			PersonID:      c.PersonID,
			IdentityPair:  c.IdentityPair,
			OldValue:      existing.Value,
			NewValue:      c.NewValue,
			NewProvenance: c.NewProvenance,
			At:            now,
		},
	}, nil
}

func decideInvalidateAttribute(state *person.Person, c personevent.InvalidateAttribute) ([]personevent.Event, error) {
	existing, ok := state.Attributes.Get(c.IdentityPair)
	if !ok {
		return nil, New(KindNotFound, fmt.Sprintf("attribute %s not found", c.IdentityPair.Type))
	}

	if existing.Temporal.ValidFrom != nil && c.At.Before(*existing.Temporal.ValidFrom) {
		return nil, Wrap(KindValidationError, "invalidation instant precedes valid_from", ErrInvalidateBeforeValidFrom)
	}

	if existing.Temporal.ValidUntil != nil && existing.Temporal.ValidUntil.Equal(c.At) {
		return nil, nil
	}

	return []personevent.Event{
		personevent.AttributeInvalidated{
			PersonID:     c.PersonID,
			IdentityPair: c.IdentityPair,
			At:           c.At,
			Reason:       c.Reason,
		},
	}, nil
}

func decideDeactivatePerson(state *person.Person, c personevent.DeactivatePerson, now time.Time) ([]personevent.Event, error) {
	switch state.Lifecycle.State {
	case person.LifecycleActive:
		return []personevent.Event{
			personevent.PersonDeactivated{PersonID: c.PersonID, Reason: c.Reason, At: now},
		}, nil
	case person.LifecycleDeactivated:
		return nil, nil
	default:
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}
}

func decideReactivatePerson(state *person.Person, c personevent.ReactivatePerson, now time.Time) ([]personevent.Event, error) {
	switch state.Lifecycle.State {
	case person.LifecycleDeactivated:
		return []personevent.Event{
			personevent.PersonReactivated{PersonID: c.PersonID, At: now},
		}, nil
	case person.LifecycleActive:
		return nil, nil
	default:
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}
}

func decideRecordDeath(state *person.Person, c personevent.RecordDeath, now time.Time) ([]personevent.Event, error) {
	if state.Lifecycle.IsTerminalForWrites() {
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}

	if state.CoreIdentity.BirthDate != nil && c.Date.Before(*state.CoreIdentity.BirthDate) {
		return nil, Wrap(KindValidationError, "death date precedes birth date", ErrDeathBeforeBirth)
	}

	return []personevent.Event{
		personevent.PersonDeceased{PersonID: c.PersonID, Date: c.Date, At: now},
	}, nil
}

func decideMergePerson(state *person.Person, c personevent.MergePerson, now time.Time) ([]personevent.Event, error) {
	if c.Into.Equal(c.PersonID) {
		return nil, Wrap(KindValidationError, "merge target must differ from person_id", ErrSelfMerge)
	}

	if state.Lifecycle.IsTerminalForWrites() {
		return nil, New(KindGone, fmt.Sprintf("person %s is terminal", c.PersonID))
	}

	return []personevent.Event{
		personevent.PersonMerged{PersonID: c.PersonID, Into: c.Into, At: now, Reason: c.Reason},
	}, nil
}
