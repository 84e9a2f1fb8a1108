package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/incidentops/geolayers/internal/models"
)

type capturedMessage struct {
	topic   string
	payload string
}

type fakeProducer struct {
	messages []capturedMessage
	err      error
}

func (p *fakeProducer) Produce(ctx context.Context, topic, payload string) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, capturedMessage{topic: topic, payload: payload})
	return nil
}

func TestNewLayerTopicAndPayload(t *testing.T) {
	producer := &fakeProducer{}
	n := New(producer, "iweb.geolayers")

	df := &models.DatalayerFolder{ID: 7, FolderID: "folder-1", DatalayerID: "layer-1", Index: 3}
	n.NewLayer(context.Background(), 42, df)

	if len(producer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.topic != "iweb.geolayers.42.datalayer.new" {
		t.Fatalf("topic = %q", msg.topic)
	}

	var got models.DatalayerFolder
	if err := json.Unmarshal([]byte(msg.payload), &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if got.DatalayerID != "layer-1" || got.Index != 3 {
		t.Fatalf("payload round-trip mismatch: %+v", got)
	}
}

func TestUpdatedAndDeletedLayerTopics(t *testing.T) {
	producer := &fakeProducer{}
	n := New(producer, "iweb.geolayers")

	n.UpdatedLayer(context.Background(), &models.Datalayer{ID: "layer-1", DisplayName: "Perimeter"})
	n.DeletedLayer(context.Background(), "layer-1")

	if len(producer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(producer.messages))
	}
	if producer.messages[0].topic != "iweb.geolayers.datalayer.update" {
		t.Fatalf("update topic = %q", producer.messages[0].topic)
	}
	if producer.messages[1].topic != "iweb.geolayers.datalayer.delete" {
		t.Fatalf("delete topic = %q", producer.messages[1].topic)
	}
	if producer.messages[1].payload != `"layer-1"` {
		t.Fatalf("delete payload = %q", producer.messages[1].payload)
	}
}

func TestCollabroomTopics(t *testing.T) {
	producer := &fakeProducer{}
	n := New(producer, "iweb.geolayers")

	dc := &models.DatalayerCollabroom{ID: 1, CollabroomID: 99, DatalayerID: "layer-1"}
	n.NewCollabroomLayer(context.Background(), dc)
	n.DeletedCollabroomLayer(context.Background(), []models.DatalayerCollabroom{*dc})

	if len(producer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(producer.messages))
	}
	if producer.messages[0].topic != "iweb.geolayers.collabroom.99.datalayer.new" {
		t.Fatalf("new topic = %q", producer.messages[0].topic)
	}
	if producer.messages[1].topic != "iweb.geolayers.collabroom.99.datalayer.delete" {
		t.Fatalf("delete topic = %q", producer.messages[1].topic)
	}
}

func TestNilAndEmptyEventsSkipped(t *testing.T) {
	producer := &fakeProducer{}
	n := New(producer, "iweb.geolayers")

	ctx := context.Background()
	n.NewLayer(ctx, 1, nil)
	n.UpdatedLayer(ctx, nil)
	n.DeletedLayer(ctx, "")
	n.NewCollabroomLayer(ctx, nil)
	n.DeletedCollabroomLayer(ctx, nil)

	if len(producer.messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(producer.messages))
	}
}

func TestPublishFailureSwallowed(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	n := New(producer, "iweb.geolayers")

	// Must not panic or surface the transport error.
	n.NewLayer(context.Background(), 1, &models.DatalayerFolder{DatalayerID: "layer-1"})
}
