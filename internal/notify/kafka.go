package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used to publish notifications.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type outboundMessage struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	QueuedAt  time.Time `json:"queued_at"`
}

// KafkaNotifier publishes notifications to a topic consumed by the mail
// delivery service. Records are keyed by recipient so one inbox sees its
// messages in order.
type KafkaNotifier struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, now: time.Now}
}

func (n *KafkaNotifier) Notify(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(outboundMessage{
		Recipient: recipient,
		Message:   message,
		QueuedAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(recipient),
		Value: payload,
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
