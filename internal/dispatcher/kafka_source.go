package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/persondomain/persond/internal/personevent"
)

// KafkaCommandSource consumes commands off a single topic as a member
// of a durable consumer group, so restarting persond resumes from the
// last committed offset instead of replaying or dropping inflight
// work. Unlike the event fanout, commands are not split per kind: the
// envelope's Tag field already names the command kind, and a dispatcher needs
// every command kind in one ordered stream per partition to preserve
// per-aggregate-id ordering via the partition key.
type KafkaCommandSource struct {
	reader      *kafka.Reader
	fetchTimeout time.Duration
}

// NewKafkaCommandSource opens a consumer group reader over topic,
// keyed by groupID so multiple persond instances share the partition
// assignment instead of each reading every message.
func NewKafkaCommandSource(brokerAddr, topic, groupID string, fetchTimeout time.Duration) (*KafkaCommandSource, error) {
	if err := provisionTopicForConsumer(brokerAddr, topic); err != nil {
		return nil, fmt.Errorf("dispatcher: provisioning %s: %w", topic, err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})

	return &KafkaCommandSource{reader: reader, fetchTimeout: fetchTimeout}, nil
}

var _ CommandSource = (*KafkaCommandSource)(nil)

// Fetch implements CommandSource. The returned message is not yet
// committed to the consumer group; callers own it until Commit.
func (s *KafkaCommandSource) Fetch(ctx context.Context) (CommandMessage, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return CommandMessage{}, fmt.Errorf("dispatcher: fetching command: %w", err)
	}

	var env personevent.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return CommandMessage{}, fmt.Errorf("dispatcher: decoding envelope: %w", err)
	}

	return CommandMessage{Envelope: env, handle: msg}, nil
}

// Commit implements CommandSource, advancing the consumer group offset
// past msg so it is never redelivered on a clean restart.
func (s *KafkaCommandSource) Commit(ctx context.Context, msg CommandMessage) error {
	kmsg, ok := msg.handle.(kafka.Message)
	if !ok {
		return fmt.Errorf("dispatcher: commit called with foreign message handle %T", msg.handle)
	}

	commitCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	if err := s.reader.CommitMessages(commitCtx, kmsg); err != nil {
		return fmt.Errorf("dispatcher: committing offset: %w", err)
	}

	return nil
}

// Close implements CommandSource.
func (s *KafkaCommandSource) Close() error {
	return s.reader.Close()
}

func provisionTopicForConsumer(brokerAddr, topic string) error {
	conn, err := kafka.DialTimeout("tcp", brokerAddr, dialTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerAddr := fmt.Sprintf("%s:%d", controller.Host, controller.Port)

	controllerConn, err := kafka.DialTimeout("tcp", controllerAddr, dialTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = controllerConn.Close() }()

	return controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     topicPartitions,
		ReplicationFactor: topicReplicationFactor,
	})
}

const (
	topicPartitions        = 1
	topicReplicationFactor = 1
	dialTimeout            = 10 * time.Second
)
