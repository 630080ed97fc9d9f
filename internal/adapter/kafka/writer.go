package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/forest-inventory-etl/internal/config"
	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

// Writer produces plot summaries to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes every summary of a state in a single WriteMessages
// call. Messages are keyed by plot condition so re-runs land on the same
// partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.SummaryBatch) error {
	if len(batch.Rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Rows))
	for i := range batch.Rows {
		msg, err := serializeToMessage(batch.Rows[i], batch.RunID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	w.logger.Debug("summaries published", "state", batch.StateCD, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey identifies a plot condition: PLT_CN/CONDID.
func MessageKey(s domain.PlotSummary) string {
	return s.PltCN + "/" + strconv.Itoa(s.CondID)
}

// serializeToMessage marshals a PlotSummary into a Kafka message.
func serializeToMessage(s domain.PlotSummary, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize plot summary: %w", err)
	}
	uid := ""
	if s.PltUID != nil {
		uid = strconv.Itoa(*s.PltUID)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(s)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "state_cd", Value: []byte(strconv.Itoa(s.StateCD))},
			{Key: "plt_uid", Value: []byte(uid)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(s.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
