package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/element-grid-service/internal/config"
	"github.com/couchcryptid/element-grid-service/internal/domain"
	"github.com/couchcryptid/element-grid-service/internal/observability"
	"github.com/couchcryptid/element-grid-service/internal/pipeline"
)

// Message kinds carried in the "kind" header.
const (
	KindPlacement = "placement"
	KindRejection = "rejection"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes grid snapshots to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured layout topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaLayoutTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PlacementMessage is the body of a placement event.
type PlacementMessage struct {
	SnapshotID string         `json:"snapshot_id"`
	Key        string         `json:"key"`
	Row        int            `json:"row"`
	Column     int            `json:"column"`
	Category   string         `json:"category"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RejectionMessage is the body of a rejection event.
type RejectionMessage struct {
	SnapshotID string `json:"snapshot_id"`
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	Field      string `json:"field,omitempty"`
	Key        string `json:"key,omitempty"`
	Reason     string `json:"reason"`
}

// PublishSnapshot writes every placement followed by every rejection of snap
// in a single WriteMessages call.
func (w *Writer) PublishSnapshot(ctx context.Context, snap *pipeline.Snapshot) error {
	msgs, err := snapshotMessages(snap)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write layout messages: %w", err)
	}
	w.metrics.EventsPublished.Add(float64(len(msgs)))
	w.logger.Debug("snapshot published", "snapshot_id", snap.ID, "messages", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

func snapshotMessages(snap *pipeline.Snapshot) ([]kafkago.Message, error) {
	records := snap.Grid.Records()
	msgs := make([]kafkago.Message, 0, len(records)+len(snap.Rejections))
	for _, rec := range records {
		msg, err := placementToMessage(snap, rec)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, r := range snap.Rejections {
		msg, err := rejectionToMessage(snap, r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func placementToMessage(snap *pipeline.Snapshot, rec *domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(PlacementMessage{
		SnapshotID: snap.ID,
		Key:        rec.Key,
		Row:        rec.Row,
		Column:     rec.Column,
		Category:   rec.Category,
		Attributes: rec.Attributes,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize placement %q: %w", rec.Key, err)
	}
	return kafkago.Message{
		Key:     []byte(rec.Key),
		Value:   data,
		Headers: headers(snap, KindPlacement),
	}, nil
}

func rejectionToMessage(snap *pipeline.Snapshot, r domain.Rejection) (kafkago.Message, error) {
	body := RejectionMessage{
		SnapshotID: snap.ID,
		Kind:       string(r.Kind),
		Index:      r.Index,
		Field:      r.Field,
		Reason:     r.String(),
	}
	if r.Record != nil {
		body.Key = r.Record.Key
	}
	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize rejection of row %d: %w", r.Index, err)
	}
	return kafkago.Message{
		Key:     []byte(fmt.Sprintf("%s/%d", snap.ID, r.Index)),
		Value:   data,
		Headers: headers(snap, KindRejection),
	}, nil
}

func headers(snap *pipeline.Snapshot, kind string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "kind", Value: []byte(kind)},
		{Key: "snapshot_id", Value: []byte(snap.ID)},
		{Key: "built_at", Value: []byte(snap.BuiltAt.Format(time.RFC3339))},
	}
}
