package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

const kafkaWriteTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends every event to a topic, keyed by booking id so the
// events of one booking stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	})
	return &KafkaPublisher{writer: w}
}

// kafkaEnvelope carries the routing fields that websocket frames omit.
type kafkaEnvelope struct {
	Event       string          `json:"event"`
	BookingID   string          `json:"booking_id,omitempty"`
	PassengerID string          `json:"passenger_id,omitempty"`
	DriverID    string          `json:"driver_id,omitempty"`
	Pickup      *model.Location `json:"pickup,omitempty"`
	Payload     any             `json:"payload"`
	At          time.Time       `json:"at"`
}

// Publish writes evt to the topic.
func (k *KafkaPublisher) Publish(ctx context.Context, evt model.Event) error {
	value, err := json.Marshal(kafkaEnvelope{
		Event:       evt.Name,
		BookingID:   evt.BookingID,
		PassengerID: evt.PassengerID,
		DriverID:    evt.DriverID,
		Pickup:      evt.Pickup,
		Payload:     evt.Payload,
		At:          evt.At,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Name, err)
	}
	key := evt.BookingID
	if key == "" {
		key = evt.Name
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event", Value: []byte(evt.Name)}},
		Time:    evt.At,
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", evt.Name, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Fanout publishes every event to each publisher in turn. A failing
// publisher does not stop the others; their errors are joined.
type Fanout []service.EventPublisher

// Publish implements service.EventPublisher.
func (f Fanout) Publish(ctx context.Context, evt model.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
