//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/kafka"
	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/forest-inventory-etl/internal/config"
	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
	"github.com/couchcryptid/forest-inventory-etl/internal/pipeline"
)

const testSinkTopic = "test-fia-summaries"

// summaryMessage holds a deserialized message read from the sink topic.
type summaryMessage struct {
	Summary domain.PlotSummary
	Key     string
	Headers map[string]string
}

func readSummary(ctx context.Context, t *testing.T, consumer *kafkago.Reader) summaryMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var s domain.PlotSummary
	require.NoError(t, json.Unmarshal(msg.Value, &s), "unmarshal sink message")
	return summaryMessage{Summary: s, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd runs SQLite -> aggregation -> Kafka against a real
// broker and checks that remeasured plots share a plt_uid on the wire.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	src, err := sqlite.Open(ctx, newFIADB(t), domain.PlotIdentityColumns, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(src, pipeline.NewAggregator(discardLogger(), metrics), writer, discardLogger(), metrics, 1)

	// 53 has no plots and must not publish anything.
	require.NoError(t, p.Run(ctx, []int{41, 53}))
	require.NoError(t, p.CheckReadiness(ctx))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byKey := make(map[string]summaryMessage)
	for range 3 {
		m := readSummary(ctx, t, consumer)
		byKey[m.Key] = m
	}
	require.Len(t, byKey, 3)

	for key, m := range byKey {
		assert.Equal(t, "41", m.Headers["state_cd"], key)
		assert.NotEmpty(t, m.Headers["run_id"], key)
		assert.NotEmpty(t, m.Headers["plt_uid"], key)
		_, err := time.Parse(time.RFC3339, m.Headers["processed_at"])
		assert.NoError(t, err, "invalid processed_at on %s", key)
		assert.Equal(t, kafka.MessageKey(m.Summary), key)
	}

	first, second, other := byKey["100/1"], byKey["200/1"], byKey["300/1"]
	require.NotNil(t, first.Summary.PltUID)
	assert.Equal(t, first.Headers["plt_uid"], second.Headers["plt_uid"], "chain 100 -> 200 shares a uid")
	assert.NotEqual(t, first.Headers["plt_uid"], other.Headers["plt_uid"])
	assert.Equal(t, first.Headers["run_id"], other.Headers["run_id"])

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further messages on the sink topic")
}
