// Package kafka owns the event stream connection. It creates the franz-go
// client, makes sure the events topic exists, and exposes a synchronous
// produce call for the publishers in internal/events.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ralphbot/internal/platform/config"
)

const (
	topicPartitions  = 3
	topicReplication = 1
)

// Client wraps a franz-go producer bound to one topic.
type Client struct {
	kgo   *kgo.Client
	topic string
}

// New connects to the configured brokers and ensures the topic exists.
// Returns nil when no brokers are configured; callers fall back to the
// no-op publisher.
func New(ctx context.Context, cfg config.Kafka) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	kcl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, kcl, cfg.Topic); err != nil {
		kcl.Close()
		return nil, err
	}

	return &Client{kgo: kcl, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, kcl *kgo.Client, topic string) error {
	adm := kadm.NewClient(kcl)
	resp, err := adm.CreateTopic(ctx, topicPartitions, topicReplication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Topic returns the topic this client produces to.
func (c *Client) Topic() string {
	return c.topic
}

// Produce writes one record synchronously. The key selects the partition so
// events for one feedback item stay ordered.
func (c *Client) Produce(ctx context.Context, key string, value []byte) error {
	record := &kgo.Record{
		Key:   []byte(key),
		Value: value,
		Topic: c.topic,
	}
	if err := c.kgo.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", c.topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.kgo.Close()
}
