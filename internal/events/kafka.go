package events

import (
	"context"
	"strconv"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type Kafka struct {
	w *kafka.Writer
}

// NewKafka keys messages by game id so one game's events stay ordered in a partition.
func NewKafka(brokers []string, topic string) *Kafka {
	if topic == "" {
		topic = "battlebots.games"
	}
	// Writers are safe for concurrent use
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Kafka{w: w}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	b, err := e.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(e.GameID), 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
