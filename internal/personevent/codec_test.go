package personevent

import (
	"testing"
	"time"

	"github.com/persondomain/persond/internal/person"
)

func mustPersonID(t *testing.T) person.ID {
	t.Helper()

	id, err := person.NewID()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	return id
}

func mustPersonName(t *testing.T) person.PersonName {
	t.Helper()

	name, err := person.NewPersonName([]string{"Alice"}, []string{"Johnson"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	return name
}

func TestCommandRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cmd := CreatePerson{
		PersonID: mustPersonID(t),
		Name:     mustPersonName(t),
		Source:   "registration-api",
	}

	expected := uint64(0)

	env, err := EncodeCommand(cmd, "corr-1", "", "", &expected)
	if err != nil {
		t.Fatalf("EncodeCommand() error: %v", err)
	}

	if env.Kind != EnvelopeKindCommand {
		t.Errorf("expected kind %q, got %q", EnvelopeKindCommand, env.Kind)
	}

	if env.Tag != string(CommandKindCreatePerson) {
		t.Errorf("expected tag %q, got %q", CommandKindCreatePerson, env.Tag)
	}

	decoded, err := DecodeCommand(env)
	if err != nil {
		t.Fatalf("DecodeCommand() error: %v", err)
	}

	got, ok := decoded.(CreatePerson)
	if !ok {
		t.Fatalf("expected CreatePerson, got %T", decoded)
	}

	if !got.PersonID.Equal(cmd.PersonID) {
		t.Errorf("PersonID round-trip mismatch")
	}

	if !got.Name.Equal(cmd.Name) {
		t.Errorf("Name round-trip mismatch")
	}

	if got.Source != cmd.Source {
		t.Errorf("Source round-trip mismatch: got %q want %q", got.Source, cmd.Source)
	}
}

func TestEventRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	event := PersonCreated{
		PersonID: mustPersonID(t),
		Name:     mustPersonName(t),
		At:       now,
		Source:   "registration-api",
	}

	env, err := EncodeEvent(event, 1, "corr-1", "cause-1")
	if err != nil {
		t.Fatalf("EncodeEvent() error: %v", err)
	}

	if env.AggregateVersion != 1 {
		t.Errorf("expected aggregate version 1, got %d", env.AggregateVersion)
	}

	decoded, err := DecodeEvent(env)
	if err != nil {
		t.Fatalf("DecodeEvent() error: %v", err)
	}

	got, ok := decoded.(PersonCreated)
	if !ok {
		t.Fatalf("expected PersonCreated, got %T", decoded)
	}

	if !got.At.Equal(event.At) {
		t.Errorf("At round-trip mismatch: got %v want %v", got.At, event.At)
	}

	if !got.PersonID.Equal(event.PersonID) {
		t.Errorf("PersonID round-trip mismatch")
	}
}

func TestDecodeCommandUnknownTag(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := Envelope{Kind: EnvelopeKindCommand, Tag: "NotARealCommand", Payload: []byte(`{}`)}

	_, err := DecodeCommand(env)
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}
