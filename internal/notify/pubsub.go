package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/serptrend/serptrend/internal/serp"
)

// PubSubNotifier publishes run summaries as JSON to a Pub/Sub topic so
// downstream alerting can react to failed or degraded runs.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub connects to Pub/Sub and binds the topic.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSubNotifier, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("notify project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Notify publishes the summary and waits for server acknowledgement.
func (n *PubSubNotifier) Notify(ctx context.Context, summary serp.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"state":       string(summary.State),
			"column_date": summary.ColumnDate,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return nil
}

// Close flushes the topic and releases the client.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
