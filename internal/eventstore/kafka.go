package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/persondomain/persond/internal/config"
	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

const (
	topicPartitions        = 1
	topicReplicationFactor = 1
	dialTimeout            = 10 * time.Second
	dlqTopic               = "person.dlq"
)

// KafkaPublisher broadcasts already-durable events to Kafka, fanning
// events out to downstream subscribers outside the core. Kafka has no
// server-side subject wildcard the way a subject-addressed broker
// would, so the subject hierarchy from spec.md section 6.2
// (<events_prefix>.<person_id>.<event_kind>) is flattened onto one
// topic per event_kind, with aggregate_id carried as the message key
// so a single partition still preserves per-aggregate ordering.
type KafkaPublisher struct {
	brokerAddr    string
	eventsPrefix  string
	writers       map[string]*kafka.Writer
	writersMu     sync.Mutex
	dlqWriter     *kafka.Writer
	logger        *slog.Logger
	ackTimeout    time.Duration
	closeOnce     sync.Once
}

// KafkaPublisherOption configures optional KafkaPublisher behavior.
type KafkaPublisherOption func(*KafkaPublisher)

// WithPublisherLogger overrides the default stdout JSON logger.
func WithPublisherLogger(logger *slog.Logger) KafkaPublisherOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// NewKafkaPublisher connects to brokerAddr and provisions the dead
// letter topic. Per-event-kind topics are created lazily on first
// publish since the event taxonomy is closed but topic provisioning
// failures shouldn't block startup for kinds nobody emits yet.
func NewKafkaPublisher(
	brokerAddr, eventsPrefix string,
	ackTimeout time.Duration,
	opts ...KafkaPublisherOption,
) (*KafkaPublisher, error) {
	p := &KafkaPublisher{
		brokerAddr:   brokerAddr,
		eventsPrefix: eventsPrefix,
		writers:      make(map[string]*kafka.Writer),
		ackTimeout:   ackTimeout,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("PERSON_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := provisionTopic(brokerAddr, dlqTopic); err != nil {
		return nil, fmt.Errorf("eventstore: provisioning %s: %w", dlqTopic, err)
	}

	p.dlqWriter = newWriter(brokerAddr, dlqTopic)

	p.logger.Info("kafka publisher ready", slog.String("broker", brokerAddr), slog.String("dlq_topic", dlqTopic))

	return p, nil
}

var _ Publisher = (*KafkaPublisher)(nil)

// HealthCheck dials the broker to confirm it is reachable, for use by
// the readiness endpoint. It does not verify individual topics.
func (p *KafkaPublisher) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", p.brokerAddr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransientBrokerUnreachable, err)
	}

	return conn.Close()
}

// PublishEvent implements Publisher.
func (p *KafkaPublisher) PublishEvent(ctx context.Context, aggregateID person.ID, envelope personevent.Envelope) error {
	topic := fmt.Sprintf("%s.%s", p.eventsPrefix, envelope.Tag)

	writer, err := p.writerFor(topic)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("eventstore: marshaling envelope for publish: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	return writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(aggregateID.String()),
		Value: payload,
		Time:  envelope.RecordedAt,
	})
}

// PublishDeadLetter implements Publisher.
func (p *KafkaPublisher) PublishDeadLetter(
	ctx context.Context,
	commandKind string,
	envelope personevent.Envelope,
	meta DeadLetterMeta,
) error {
	type deadLetter struct {
		CommandKind      string               `json:"command_kind"`
		Reason           string               `json:"reason"`
		AttemptCount     int                  `json:"attempt_count"`
		FirstAttemptedAt time.Time            `json:"first_attempted_at"`
		Envelope         personevent.Envelope `json:"envelope"`
	}

	payload, err := json.Marshal(deadLetter{
		CommandKind:      commandKind,
		Reason:           meta.Reason,
		AttemptCount:     meta.AttemptCount,
		FirstAttemptedAt: meta.FirstAttemptedAt,
		Envelope:         envelope,
	})
	if err != nil {
		return fmt.Errorf("eventstore: marshaling dead letter: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	return p.dlqWriter.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(commandKind),
		Value: payload,
	})
}

// PublishReply implements Publisher. replyTo is used verbatim as the
// Kafka topic name, since reply addressing is chosen by each command's
// sender rather than by the event taxonomy.
func (p *KafkaPublisher) PublishReply(ctx context.Context, replyTo string, reply CommandReply) error {
	if replyTo == "" {
		return nil
	}

	writer, err := p.writerFor(replyTo)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("eventstore: marshaling reply: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	return writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(reply.CommandID),
		Value: payload,
	})
}

// Close flushes and closes every topic writer. Safe to call more than
// once.
func (p *KafkaPublisher) Close() error {
	var errs []error

	p.closeOnce.Do(func() {
		p.writersMu.Lock()
		defer p.writersMu.Unlock()

		for topic, w := range p.writers {
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing writer for %s: %w", topic, err))
			}
		}

		if p.dlqWriter != nil {
			if err := p.dlqWriter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing dlq writer: %w", err))
			}
		}
	})

	if len(errs) > 0 {
		return fmt.Errorf("eventstore: close errors: %v", errs)
	}

	return nil
}

func (p *KafkaPublisher) writerFor(topic string) (*kafka.Writer, error) {
	p.writersMu.Lock()
	defer p.writersMu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w, nil
	}

	if err := provisionTopic(p.brokerAddr, topic); err != nil {
		return nil, fmt.Errorf("eventstore: provisioning %s: %w", topic, err)
	}

	w := newWriter(p.brokerAddr, topic)
	p.writers[topic] = w

	return w, nil
}

func newWriter(brokerAddr, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// provisionTopic ensures topic exists, idempotently. A topic already
// provisioned by a prior run or another instance is not an error.
func provisionTopic(brokerAddr, topic string) error {
	conn, err := kafka.DialTimeout("tcp", brokerAddr, dialTimeout)
	if err != nil {
		return fmt.Errorf("%w: dialing broker: %w", ErrTransientBrokerUnreachable, err)
	}
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("%w: resolving controller: %w", ErrTransientBrokerUnreachable, err)
	}

	controllerConn, err := kafka.DialTimeout("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), dialTimeout)
	if err != nil {
		return fmt.Errorf("%w: dialing controller: %w", ErrTransientBrokerUnreachable, err)
	}
	defer func() { _ = controllerConn.Close() }()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     topicPartitions,
		ReplicationFactor: topicReplicationFactor,
	})
	if err != nil {
		return fmt.Errorf("%w: creating topic %s: %w", ErrTransientBrokerUnreachable, topic, err)
	}

	return nil
}
