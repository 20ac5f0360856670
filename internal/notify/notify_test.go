package notify

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestApprovalRequestMessage(t *testing.T) {
	t.Run("public change shows value", func(t *testing.T) {
		msg := ApprovalRequestMessage("jane.doe@example.com", ChangeSummary{
			ChangeID:  "c-1",
			FieldPath: "public_view.blood_type",
			NewValue:  json.RawMessage(`"AB"`),
		})
		assert.Contains(t, msg, "Hello Jane,")
		assert.Contains(t, msg, `Change to public_view.blood_type: "AB"`)
		assert.Contains(t, msg, "Reference: c-1")
	})

	t.Run("private change withholds value", func(t *testing.T) {
		msg := ApprovalRequestMessage("doc@example.com", ChangeSummary{
			FieldPath: "private_profile.national_id",
			NewValue:  json.RawMessage(`"123-45-6789"`),
			Private:   true,
		})
		assert.Contains(t, msg, "Change to private_profile.national_id awaiting your review")
		assert.NotContains(t, msg, "123-45-6789")
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), "doc@example.com", "hi"))
	assert.Contains(t, buf.String(), `"recipient":"doc@example.com"`)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func TestKafkaNotifier(t *testing.T) {
	t.Run("publishes keyed record", func(t *testing.T) {
		p := &fakeProducer{}
		n := NewKafkaNotifier(p, "instahelp.notifications")
		n.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

		require.NoError(t, n.Notify(context.Background(), "doc@example.com", "hi"))
		require.Len(t, p.records, 1)
		assert.Equal(t, "instahelp.notifications", p.records[0].Topic)
		assert.Equal(t, "doc@example.com", string(p.records[0].Key))
		assert.JSONEq(t, `{"recipient":"doc@example.com","message":"hi","queued_at":"2025-01-02T03:04:05Z"}`, string(p.records[0].Value))
	})

	t.Run("surfaces broker errors", func(t *testing.T) {
		n := NewKafkaNotifier(&fakeProducer{err: errors.New("broker down")}, "t")
		err := n.Notify(context.Background(), "doc@example.com", "hi")
		assert.ErrorContains(t, err, "broker down")
	})
}
