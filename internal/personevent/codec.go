package personevent

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EncodeCommand renders a Command into its wire Envelope. The caller
// supplies correlation/causation identity and, for optimistic
// concurrency, the version the command expects the aggregate to be at.
func EncodeCommand(cmd Command, correlationID, causationID, replyTo string, expectedVersion *uint64) (Envelope, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode command payload: %w", err)
	}

	messageID, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("generate message id: %w", err)
	}

	return Envelope{
		MessageID:       messageID.String(),
		CorrelationID:   correlationID,
		CausationID:     causationID,
		SchemaVersion:   CurrentSchemaVersion,
		Kind:            EnvelopeKindCommand,
		Tag:             string(cmd.CommandKind()),
		AggregateID:     cmd.AggregateID().String(),
		ExpectedVersion: expectedVersion,
		ReplyTo:         replyTo,
		Payload:         payload,
	}, nil
}

// DecodeCommand recovers the concrete Command a command Envelope carries.
func DecodeCommand(env Envelope) (Command, error) {
	var cmd Command

	switch CommandKind(env.Tag) {
	case CommandKindCreatePerson:
		cmd = &CreatePerson{}
	case CommandKindUpdateName:
		cmd = &UpdateName{}
	case CommandKindRecordAttribute:
		cmd = &RecordAttribute{}
	case CommandKindUpdateAttribute:
		cmd = &UpdateAttribute{}
	case CommandKindInvalidateAttribute:
		cmd = &InvalidateAttribute{}
	case CommandKindDeactivatePerson:
		cmd = &DeactivatePerson{}
	case CommandKindReactivatePerson:
		cmd = &ReactivatePerson{}
	case CommandKindRecordDeath:
		cmd = &RecordDeath{}
	case CommandKindMergePerson:
		cmd = &MergePerson{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, env.Tag)
	}

	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return nil, fmt.Errorf("decode command payload for tag %s: %w", env.Tag, err)
	}

	return dereference(cmd), nil
}

// EncodeEvent renders an Event into its wire Envelope at the given
// post-apply aggregate version.
func EncodeEvent(event Event, aggregateVersion uint64, correlationID, causationID string) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode event payload: %w", err)
	}

	messageID, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("generate message id: %w", err)
	}

	return Envelope{
		MessageID:        messageID.String(),
		CorrelationID:    correlationID,
		CausationID:      causationID,
		SchemaVersion:    CurrentSchemaVersion,
		Kind:             EnvelopeKindEvent,
		Tag:              string(event.EventKind()),
		AggregateID:      event.AggregateID().String(),
		AggregateVersion: aggregateVersion,
		Payload:          payload,
	}, nil
}

// DecodeEvent recovers the concrete Event an event Envelope carries.
// Unknown tags are reported as ErrUnknownTag rather than silently
// dropped; callers that must tolerate forward schema evolution (future
// event kinds from a newer writer) should treat ErrUnknownTag as a
// skip-and-log condition rather than a fatal one.
func DecodeEvent(env Envelope) (Event, error) {
	var event Event

	switch EventKind(env.Tag) {
	case EventKindPersonCreated:
		event = &PersonCreated{}
	case EventKindNameUpdated:
		event = &NameUpdated{}
	case EventKindAttributeRecorded:
		event = &AttributeRecorded{}
	case EventKindAttributeUpdated:
		event = &AttributeUpdated{}
	case EventKindAttributeInvalidated:
		event = &AttributeInvalidated{}
	case EventKindPersonDeactivated:
		event = &PersonDeactivated{}
	case EventKindPersonReactivated:
		event = &PersonReactivated{}
	case EventKindPersonDeceased:
		event = &PersonDeceased{}
	case EventKindPersonMerged:
		event = &PersonMerged{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, env.Tag)
	}

	if err := json.Unmarshal(env.Payload, event); err != nil {
		return nil, fmt.Errorf("decode event payload for tag %s: %w", env.Tag, err)
	}

	return dereferenceEvent(event), nil
}

// dereference unwraps the pointer receiver json.Unmarshal needs back
// into the value type that satisfies Command in the rest of the
// codebase, so callers never have to type-switch on pointer vs value.
func dereference(cmd Command) Command {
	switch c := cmd.(type) {
	case *CreatePerson:
		return *c
	case *UpdateName:
		return *c
	case *RecordAttribute:
		return *c
	case *UpdateAttribute:
		return *c
	case *InvalidateAttribute:
		return *c
	case *DeactivatePerson:
		return *c
	case *ReactivatePerson:
		return *c
	case *RecordDeath:
		return *c
	case *MergePerson:
		return *c
	default:
		return cmd
	}
}

func dereferenceEvent(event Event) Event {
	switch e := event.(type) {
	case *PersonCreated:
		return *e
	case *NameUpdated:
		return *e
	case *AttributeRecorded:
		return *e
	case *AttributeUpdated:
		return *e
	case *AttributeInvalidated:
		return *e
	case *PersonDeactivated:
		return *e
	case *PersonReactivated:
		return *e
	case *PersonDeceased:
		return *e
	case *PersonMerged:
		return *e
	default:
		return event
	}
}
