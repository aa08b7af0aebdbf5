//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/covid-tracker/internal/adapter/kafka"
	"github.com/couchcryptid/covid-tracker/internal/adapter/source"
	"github.com/couchcryptid/covid-tracker/internal/archive/fsarchive"
	"github.com/couchcryptid/covid-tracker/internal/config"
	"github.com/couchcryptid/covid-tracker/internal/domain"
	"github.com/couchcryptid/covid-tracker/internal/observability"
	"github.com/couchcryptid/covid-tracker/internal/pipeline"
)

const testNotifyTopic = "test-covid-reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("covid-tracker-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// receivedMessage holds a notification read back from the topic.
type receivedMessage struct {
	Note    domain.Notification
	Key     string
	Headers map[string]string
}

func readNotification(ctx context.Context, t *testing.T, consumer *kafkago.Reader) receivedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from notify topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var note domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &note), "unmarshal notification")

	return receivedMessage{Note: note, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testNotifyTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestNotifierRoundTrip verifies that a notification published by the Kafka
// adapter is readable with its key, headers and JSON body intact.
func TestNotifierRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testNotifyTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaNotifyTopic: testNotifyTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	date := domain.CalendarDate{Year: 2020, Month: time.April, Day: 2}
	asOf := time.Date(2020, 4, 2, 21, 0, 0, 0, time.UTC)
	note := domain.Notification{
		RunID: "run-1",
		Date:  date,
		Report: domain.DailyReport{
			Info:  domain.Info{AsOf: asOf, Tested: 1000, Positive: 150},
			Ratio: &domain.Ratio{YesterdayRatio: 1.5, PrevPositive: 100},
		},
		Check: domain.Snapshot{Region: "MN", AsOf: asOf},
	}
	require.NoError(t, notifier.Notify(ctx, note))

	got := readNotification(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "2020.04.02", got.Key)
	assert.Equal(t, "run-1", got.Headers["run_id"])
	assert.Equal(t, "2020.04.02", got.Headers["date"])
	assert.Equal(t, date, got.Note.Date)
	assert.Equal(t, uint32(150), got.Note.Report.Info.Positive)
	require.NotNil(t, got.Note.Report.Ratio)
	assert.InDelta(t, 1.5, got.Note.Report.Ratio.YesterdayRatio, 1e-6)
	assert.Equal(t, "MN", got.Note.Check.Region)
}

// TestPipelineEndToEnd runs the full pipeline against a local source server,
// a filesystem archive and a real broker.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testNotifyTopic)

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"state":"WI","positive":1,"total":2,"dateChecked":"2020-04-02T21:00:00Z"},
			{"state":"MN","positive":789,"total":24000,"dateChecked":"2020-04-02T21:00:00Z"}
		]`)
	}))
	t.Cleanup(src.Close)

	store, err := fsarchive.New(t.TempDir(), discardLogger())
	require.NoError(t, err)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaNotifyTopic: testNotifyTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	rule := domain.NewDateRule(time.UTC)
	p := pipeline.New(pipeline.Stages{
		Fetcher:   source.NewClient(10*time.Second, discardLogger()),
		SourceURL: src.URL,
		Extractor: domain.Extractor{Format: domain.FormatList, Region: "MN", Rule: rule},
		Archive:   store,
		Rule:      rule,
		Notifier:  notifier,
	}, discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2020.04.02", res.Date.String())

	report, ok, err := store.Read(ctx, res.Date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(789), report.Info.Positive)
	assert.Nil(t, report.Ratio)

	got := readNotification(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "2020.04.02", got.Key)
	assert.Equal(t, res.RunID, got.Headers["run_id"])
	assert.Equal(t, uint32(24000), got.Note.Report.Info.Tested)
	assert.Equal(t, "MN", got.Note.Check.Region)
}
