package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/persondomain/persond/internal/aggregate"
	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// Dispatcher is the command dispatcher (C7): it pulls commands off a
// CommandSource, serializes commands against the same aggregate,
// decides and saves through an AggregateRepository, and replies or
// dead-letters according to the kind of failure it hits.
type Dispatcher struct {
	source     CommandSource
	repo       AggregateRepository
	publisher  eventstore.Publisher
	quarantine QuarantineStore
	retry      retryPolicy
	locks      *lockTable
	inflight   chan struct{}
	logger     *slog.Logger

	now func() time.Time
}

// Option configures optional Dispatcher behavior.
type Option func(*Dispatcher)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(base, cap time.Duration, maxAttempts int) Option {
	return func(d *Dispatcher) {
		d.retry = retryPolicy{base: base, cap: cap, maxAttempts: maxAttempts}
	}
}

// WithClock overrides the dispatcher's notion of now, for deterministic
// tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

const (
	defaultRetryBase        = 100 * time.Millisecond
	defaultRetryCap         = 30 * time.Second
	defaultRetryMaxAttempts = 8
	defaultMaxInflight      = 64
)

// New builds a Dispatcher. maxInflight bounds the number of commands
// processed concurrently (spec's max_inflight_commands), independent
// of how many distinct aggregates are involved.
func New(
	source CommandSource,
	repo AggregateRepository,
	publisher eventstore.Publisher,
	quarantine QuarantineStore,
	maxInflight int,
	opts ...Option,
) *Dispatcher {
	if maxInflight < 1 {
		maxInflight = defaultMaxInflight
	}

	d := &Dispatcher{
		source:     source,
		repo:       repo,
		publisher:  publisher,
		quarantine: quarantine,
		retry:      retryPolicy{base: defaultRetryBase, cap: defaultRetryCap, maxAttempts: defaultRetryMaxAttempts},
		locks:      newLockTable(),
		inflight:   make(chan struct{}, maxInflight),
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run consumes commands until ctx is cancelled, then drains whatever
// is already inflight before returning. Fetch errors caused by ctx
// cancellation are swallowed; any other Fetch error is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := d.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("dispatcher: %w", err)
		}

		select {
		case d.inflight <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		wg.Add(1)

		go func(msg CommandMessage) {
			defer wg.Done()
			defer func() { <-d.inflight }()

			d.handle(ctx, msg)
		}(msg)
	}
}

// handle runs one command through load/decide/save and acknowledges or
// retries it according to what happened. It never returns an error:
// every terminal outcome (success, permanent rejection, dead letter,
// quarantine) ends in a Commit.
func (d *Dispatcher) handle(ctx context.Context, msg CommandMessage) {
	env := msg.Envelope

	cmd, err := personevent.DecodeCommand(env)
	if err != nil {
		d.logger.Error("dropping undecodable command", slog.String("message_id", env.MessageID), slog.Any("error", err))
		d.deadLetter(ctx, env.Tag, env, eventstore.DeadLetterMeta{
			Reason:           fmt.Sprintf("undecodable: %v", err),
			AttemptCount:     1,
			FirstAttemptedAt: d.now(),
		})
		d.commit(ctx, msg)

		return
	}

	aggregateID := cmd.AggregateID()

	if d.quarantine != nil {
		quarantined, err := d.quarantine.IsQuarantined(ctx, aggregateID)
		if err != nil {
			d.logger.Warn("quarantine check failed, proceeding", slog.String("aggregate_id", aggregateID.String()), slog.Any("error", err))
		} else if quarantined {
			d.logger.Warn("dropping command for quarantined aggregate", slog.String("aggregate_id", aggregateID.String()), slog.String("kind", env.Tag))
			d.commit(ctx, msg)

			return
		}
	}

	release, err := d.locks.Acquire(ctx, aggregateID.String())
	if err != nil {
		// ctx was cancelled while waiting for the lock; leave the
		// message uncommitted so it is redelivered.
		return
	}
	defer release()

	d.processWithRetry(ctx, msg, env, cmd, aggregateID)
}

func (d *Dispatcher) processWithRetry(ctx context.Context, msg CommandMessage, env personevent.Envelope, cmd personevent.Command, aggregateID person.ID) {
	backoff := newBackOff(d.retry)
	firstAttemptedAt := d.now()

	for attempt := 1; ; attempt++ {
		err := d.attempt(ctx, env, cmd, aggregateID)
		if err == nil {
			d.commit(ctx, msg)

			return
		}

		var domainErr *aggregate.DomainError
		if !errors.As(err, &domainErr) {
			domainErr = aggregate.Wrap(aggregate.KindInternal, "unclassified dispatcher error", err)
		}

		if domainErr.Kind == aggregate.KindCorrupt {
			d.quarantineAggregate(ctx, aggregateID, env, domainErr)
			d.commit(ctx, msg)

			return
		}

		if !domainErr.Retryable() || attempt >= d.retry.maxAttempts {
			if domainErr.Retryable() {
				d.logger.Warn("exhausted retries, dead-lettering", slog.String("aggregate_id", aggregateID.String()), slog.Int("attempt", attempt), slog.Any("error", domainErr))
				d.deadLetter(ctx, env.Tag, env, eventstore.DeadLetterMeta{
					Reason:           domainErr.Error(),
					AttemptCount:     attempt,
					FirstAttemptedAt: firstAttemptedAt,
				})
			} else {
				d.reply(ctx, env, eventstore.ReplyResultRejected, domainErr, 0)
			}

			d.commit(ctx, msg)

			return
		}

		wait := backoff.NextBackOff()
		if !sleepBetween(wait, ctx.Done()) {
			return
		}
	}
}

// attempt runs exactly one load/decide/save cycle.
func (d *Dispatcher) attempt(ctx context.Context, env personevent.Envelope, cmd personevent.Command, aggregateID person.ID) error {
	state, _, err := d.repo.Load(ctx, aggregateID)
	if err != nil && aggregate.KindOf(err) != aggregate.KindNotFound {
		return err
	}

	if err != nil {
		state = nil
	}

	var expectedVersion uint64
	if state != nil {
		expectedVersion = state.Version
	}

	if env.ExpectedVersion != nil && *env.ExpectedVersion != expectedVersion {
		return aggregate.New(aggregate.KindConflictConcurrency, fmt.Sprintf("expected version %d, aggregate is at %d", *env.ExpectedVersion, expectedVersion))
	}

	events, err := aggregate.Decide(state, cmd, d.now())
	if err != nil {
		return err
	}

	if len(events) == 0 {
		d.reply(ctx, env, eventstore.ReplyResultNoChange, nil, expectedVersion)

		return nil
	}

	stateAfter := state

	for _, evt := range events {
		stateAfter, err = aggregate.Apply(stateAfter, evt)
		if err != nil {
			return err
		}
	}

	newVersion, _, err := d.repo.Save(ctx, aggregateID, stateAfter, events, expectedVersion, env.CorrelationID, env.MessageID)
	if err != nil {
		return err
	}

	d.reply(ctx, env, eventstore.ReplyResultApplied, nil, newVersion)

	return nil
}

func (d *Dispatcher) quarantineAggregate(ctx context.Context, aggregateID person.ID, env personevent.Envelope, domainErr *aggregate.DomainError) {
	d.logger.Error("quarantining aggregate after corrupt history", slog.String("aggregate_id", aggregateID.String()), slog.Any("error", domainErr))

	if d.quarantine == nil {
		return
	}

	if err := d.quarantine.Quarantine(ctx, aggregateID, env.Tag, env.CorrelationID, domainErr.Error()); err != nil {
		d.logger.Error("failed to record quarantine", slog.String("aggregate_id", aggregateID.String()), slog.Any("error", err))
	}

	d.reply(ctx, env, eventstore.ReplyResultRejected, domainErr, 0)
}

func (d *Dispatcher) reply(ctx context.Context, env personevent.Envelope, result string, domainErr *aggregate.DomainError, newVersion uint64) {
	if env.ReplyTo == "" || d.publisher == nil {
		return
	}

	cr := eventstore.CommandReply{
		CommandID:     env.MessageID,
		CorrelationID: env.CorrelationID,
		Result:        result,
		NewVersion:    newVersion,
	}

	if domainErr != nil {
		cr.ErrorKind = string(domainErr.Kind)
		cr.ErrorMessage = domainErr.Message
	}

	if err := d.publisher.PublishReply(ctx, env.ReplyTo, cr); err != nil {
		d.logger.Warn("failed to publish command reply", slog.String("reply_to", env.ReplyTo), slog.Any("error", err))
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, commandKind string, env personevent.Envelope, meta eventstore.DeadLetterMeta) {
	if d.publisher == nil {
		return
	}

	if err := d.publisher.PublishDeadLetter(ctx, commandKind, env, meta); err != nil {
		d.logger.Error("failed to publish dead letter", slog.String("message_id", env.MessageID), slog.Any("error", err))
	}
}

func (d *Dispatcher) commit(ctx context.Context, msg CommandMessage) {
	if err := d.source.Commit(ctx, msg); err != nil {
		d.logger.Error("failed to commit command offset", slog.String("message_id", msg.Envelope.MessageID), slog.Any("error", err))
	}
}
