// Package kafka publishes reconciled case records to a sink topic so
// downstream consumers (warehouse loaders, alerting) see the same keyed
// records the API serves.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
)

// Writer produces case records to a Kafka topic.
// It implements atlas.Exporter.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// ExportCases serializes and publishes a region's reconciled case records
// in a single WriteMessages call.
func (w *Writer) ExportCases(ctx context.Context, region string, records []domain.CaseRecord) error {
	if len(records) == 0 {
		return nil
	}

	exportedAt := domain.Clock().Now().UTC().Format(time.RFC3339)
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeRecord(region, records[i], exportedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	w.logger.Info("exporting case records", "region", region, "count", len(msgs))
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeRecord marshals one case record into a Kafka message keyed by
// region and unit, so per-unit history lands in one partition.
func serializeRecord(region string, rec domain.CaseRecord, exportedAt string) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize case record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(region + "|" + rec.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(region)},
			{Key: "bucket", Value: []byte(rec.Bucket)},
			{Key: "exported_at", Value: []byte(exportedAt)},
		},
	}, nil
}
