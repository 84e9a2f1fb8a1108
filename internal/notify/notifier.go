// Package notify publishes catalog change events over the shared pub/sub
// transport. Publication is best-effort and at-most-once: failures are
// logged and never surfaced to the caller that triggered the change.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/models"
)

var tracer = otel.Tracer("geolayers-notify")

// Producer delivers one payload to a topic.
type Producer interface {
	Produce(ctx context.Context, topic, payload string) error
}

// RedisProducer publishes messages through Redis pub/sub.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer initializes a connected producer
func NewRedisProducer(addr, password string, db int) (*RedisProducer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &RedisProducer{client: client}, nil
}

// Produce publishes payload on topic.
func (p *RedisProducer) Produce(ctx context.Context, topic, payload string) error {
	return p.client.Publish(ctx, topic, payload).Err()
}

// Close closes the Redis connection
func (p *RedisProducer) Close() error {
	return p.client.Close()
}

// Topic construction. Workspace-scoped layer creation carries the workspace
// id; update and delete are global; collabroom variants carry the room id.

func TopicNewLayer(ns string, workspaceID int) string {
	return fmt.Sprintf("%s.%d.datalayer.new", ns, workspaceID)
}

func TopicUpdatedLayer(ns string) string {
	return fmt.Sprintf("%s.datalayer.update", ns)
}

func TopicDeletedLayer(ns string) string {
	return fmt.Sprintf("%s.datalayer.delete", ns)
}

func TopicNewCollabroomLayer(ns string, collabroomID int) string {
	return fmt.Sprintf("%s.collabroom.%d.datalayer.new", ns, collabroomID)
}

func TopicDeletedCollabroomLayer(ns string, collabroomID int) string {
	return fmt.Sprintf("%s.collabroom.%d.datalayer.delete", ns, collabroomID)
}

// Notifier serializes catalog mutations and publishes them on deterministic
// topics.
type Notifier struct {
	producer  Producer
	namespace string
}

// New creates a notifier over an already-connected producer.
func New(producer Producer, namespace string) *Notifier {
	return &Notifier{producer: producer, namespace: namespace}
}

// NewLayer announces a folder-placed layer to its workspace.
func (n *Notifier) NewLayer(ctx context.Context, workspaceID int, df *models.DatalayerFolder) {
	if df == nil {
		return
	}
	n.publish(ctx, TopicNewLayer(n.namespace, workspaceID), df)
}

// UpdatedLayer announces a layer change.
func (n *Notifier) UpdatedLayer(ctx context.Context, layer *models.Datalayer) {
	if layer == nil {
		return
	}
	n.publish(ctx, TopicUpdatedLayer(n.namespace), layer)
}

// DeletedLayer announces a layer removal.
func (n *Notifier) DeletedLayer(ctx context.Context, datalayerID string) {
	if datalayerID == "" {
		return
	}
	n.publish(ctx, TopicDeletedLayer(n.namespace), datalayerID)
}

// NewCollabroomLayer announces a layer placed directly in a collabroom.
func (n *Notifier) NewCollabroomLayer(ctx context.Context, dc *models.DatalayerCollabroom) {
	if dc == nil {
		return
	}
	n.publish(ctx, TopicNewCollabroomLayer(n.namespace, dc.CollabroomID), dc)
}

// DeletedCollabroomLayer announces the removal of collabroom placements.
func (n *Notifier) DeletedCollabroomLayer(ctx context.Context, dcs []models.DatalayerCollabroom) {
	if len(dcs) == 0 {
		return
	}
	n.publish(ctx, TopicDeletedCollabroomLayer(n.namespace, dcs[0].CollabroomID), dcs)
}

func (n *Notifier) publish(ctx context.Context, topic string, payload any) {
	ctx, span := tracer.Start(ctx, "notify.publish",
		trace.WithAttributes(attribute.String("topic", topic)),
	)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to serialize event for %s: %v", topic, err)
		return
	}
	if err := n.producer.Produce(ctx, topic, string(data)); err != nil {
		span.RecordError(err)
		log.Printf("Failed to publish event on %s: %v", topic, err)
		return
	}
	span.SetAttributes(attribute.Bool("publish_success", true))
}
