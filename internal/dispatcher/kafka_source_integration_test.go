package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

func TestKafkaCommandSourceFetchAndCommitIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "person.commands.integration"

	id, err := person.NewID()
	require.NoError(t, err)

	name, err := person.NewPersonName([]string{"Ada"}, []string{"Lovelace"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	cmd := personevent.CreatePerson{PersonID: id, Name: name, Source: "integration-test"}

	env, err := personevent.EncodeCommand(cmd, "corr-1", "", "", nil)
	require.NoError(t, err)

	source, err := NewKafkaCommandSource(brokers[0], topic, "persond-dispatcher-test", 10*time.Second)
	require.NoError(t, err)

	t.Cleanup(func() { _ = source.Close() })

	producer := &kafka.Writer{Addr: kafka.TCP(brokers[0]), Topic: topic, Balancer: &kafka.Hash{}}
	t.Cleanup(func() { _ = producer.Close() })

	payload, err := json.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, producer.WriteMessages(ctx, kafka.Message{Key: []byte(id.String()), Value: payload}))

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := source.Fetch(fetchCtx)
	require.NoError(t, err)
	require.Equal(t, env.MessageID, msg.Envelope.MessageID)

	require.NoError(t, source.Commit(ctx, msg))
}
