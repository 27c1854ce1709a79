//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"certverify/pkg/testutil/containers"
)

func TestProducer_RoundTrip(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := NewProducer(ctx, []string{rp.Broker})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.EnsureTopic(ctx, "certverify.audit", 1, 1))
	require.NoError(t, producer.EnsureTopic(ctx, "certverify.audit", 1, 1), "second call is a no-op")
	require.NoError(t, producer.Produce(ctx, "certverify.audit", []byte("k"), []byte(`{"action":"x"}`)))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("certverify.audit"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)
	require.Equal(t, "k", string(records[0].Key))
}
