package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

func testNotification() domain.Notification {
	positive := uint32(150)
	asOf := time.Date(2020, 4, 14, 16, 0, 0, 0, time.UTC)
	return domain.Notification{
		RunID: "run-1",
		Date:  domain.CalendarDate{Year: 2020, Month: time.April, Day: 14},
		Report: domain.DailyReport{
			Info:  domain.Info{AsOf: asOf, Tested: 1200, Positive: positive},
			Ratio: &domain.Ratio{YesterdayRatio: 1.5, PrevPositive: 100},
		},
		Check: domain.Snapshot{Region: "MN", AsOf: asOf, Positive: &positive},
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testNotification())
	require.NoError(t, err)

	assert.Equal(t, []byte("2020.04.14"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "date", msg.Headers[1].Key)
	assert.Equal(t, []byte("2020.04.14"), msg.Headers[1].Value)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "2020.04.14", body["date"])
	report := body["report"].(map[string]any)
	assert.Equal(t, 150.0, report["info"].(map[string]any)["positive"])
	assert.Equal(t, 1.5, report["ratio"].(map[string]any)["yesterday_ratio"])
	assert.Equal(t, "MN", body["check"].(map[string]any)["region"])
}

func TestSerializeToMessage_RoundTripsDate(t *testing.T) {
	msg, err := serializeToMessage(testNotification())
	require.NoError(t, err)

	var got domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, testNotification().Date, got.Date)
	assert.Nil(t, got.Check.Tested)
}

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNotifier_Notify(t *testing.T) {
	fw := &fakeWriter{}
	n := &Notifier{writer: fw, topic: "covid-daily-report", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, n.Notify(context.Background(), testNotification()))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, []byte("2020.04.14"), fw.msgs[0].Key)

	require.NoError(t, n.Close())
	assert.True(t, fw.closed)
}

func TestNotifier_NotifyError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	n := &Notifier{writer: fw, topic: "covid-daily-report", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := n.Notify(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "covid-daily-report")
	assert.Contains(t, err.Error(), "broker down")
}
