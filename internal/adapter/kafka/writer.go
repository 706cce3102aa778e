// Package kafka publishes canonical observations to a topic, for
// deployments that want a stream alongside the partition files.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
)

// Writer produces canonical records to a Kafka topic. It implements
// pipeline.RecordSink.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the canonical-observations topic.
func NewWriter(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:     kafkago.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
		// Records also land on disk, so one ack is enough here.
		RequiredAcks: kafkago.RequireOne,
		Compression:  kafkago.Snappy,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes and publishes one unit's canonical records in a
// single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, unit domain.WorkUnit, recs []domain.CanonicalRecord) error {
	if len(recs) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(recs))
	for i := range recs {
		msg, err := serializeToMessage(unit, recs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.SinkRecords.WithLabelValues("kafka", "error").Add(float64(len(msgs)))
		return err
	}
	w.metrics.SinkRecords.WithLabelValues("kafka", "success").Add(float64(len(msgs)))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// observationMessage is the wire shape of one canonical observation.
// Missing fields serialize as JSON null, keeping the stream schema as
// uniform as the partition files.
type observationMessage struct {
	Dataset    string              `json:"dataset"`
	Country    string              `json:"country"`
	StationID  string              `json:"station_id"`
	ObservedAt string              `json:"observed_at"`
	Values     map[string]*float64 `json:"values"`
}

// serializeToMessage marshals one record. Messages are keyed by
// dataset/station so each station's observations stay in one partition,
// in order.
func serializeToMessage(unit domain.WorkUnit, rec domain.CanonicalRecord) (kafkago.Message, error) {
	values := make(map[string]*float64, len(domain.CanonicalFields))
	for _, field := range domain.CanonicalFields {
		values[string(field)] = rec.Values[field]
	}

	data, err := json.Marshal(observationMessage{
		Dataset:    string(unit.Dataset),
		Country:    unit.Country,
		StationID:  rec.StationID,
		ObservedAt: rec.Time.Time().Format(time.RFC3339),
		Values:     values,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%s/%s", unit.Dataset, rec.StationID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(unit.Dataset)},
			{Key: "country", Value: []byte(unit.Country)},
		},
	}, nil
}
