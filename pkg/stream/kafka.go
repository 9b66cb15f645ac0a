// Package stream publishes settlement records to Kafka for downstream
// consumers (analytics, notifications). The exchange never reads the
// feed back; it is emit-only and best effort after commit.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/probo-exchange/probo/pkg/exchange"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes one message per trade, keyed by symbol so consumers
// see each market's trades in order.
func (p *Producer) Publish(ctx context.Context, trades []exchange.Trade) error {
	msgs := make([]kafka.Message, len(trades))
	for i, t := range trades {
		value, err := json.Marshal(t)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{
			Key:   []byte(t.Symbol),
			Value: value,
		}
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
