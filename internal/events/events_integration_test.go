//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"ralphbot/internal/events"
	"ralphbot/internal/platform/config"
	"ralphbot/internal/platform/kafka"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/testutil/containers"
)

// TestKafkaPublisherRoundTrip produces queue events through the real
// client and reads them back with a plain consumer, checking that the
// feedback ID is the record key and per-entry order is preserved.
func TestKafkaPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.NewRedpandaContainer(t)
	defer func() { _ = rp.Container.Terminate(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const topic = "ralphbot.feedback.events"
	client, err := kafka.New(ctx, config.Kafka{Brokers: rp.Brokers, Topic: topic})
	require.NoError(t, err)
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := events.NewKafkaPublisher(client, logger)

	feedbackID := id.NewFeedbackID()
	published := []events.QueueEvent{
		{Type: events.TypeSubmitted, FeedbackID: feedbackID, Priority: 4.2},
		{Type: events.TypeTransitioned, FeedbackID: feedbackID, Actor: "ralph", From: "pending", To: "triaged"},
		{Type: events.TypeVoted, FeedbackID: feedbackID, Priority: 5.1},
	}
	for _, event := range published {
		require.NoError(t, publisher.Publish(ctx, event))
	}

	consumer := rp.NewClient(t, kgo.ConsumeTopics(topic))
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < len(published) {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, fetches.Err())
		records = append(records, fetches.Records()...)
	}
	require.Len(t, records, len(published))

	for i, record := range records {
		require.Equal(t, feedbackID.String(), string(record.Key), "records are keyed by feedback ID")

		var got events.QueueEvent
		require.NoError(t, json.Unmarshal(record.Value, &got))
		require.Equal(t, published[i].Type, got.Type, "per-key order survives the round trip")
		require.Equal(t, feedbackID, got.FeedbackID)
		require.False(t, got.At.IsZero(), "publish stamps the event time")
	}
}
