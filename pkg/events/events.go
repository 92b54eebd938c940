// Package events publishes notifications about minted tokens.
package events

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MintedEvent announces a token that landed on-chain.
type MintedEvent struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Creator     string `json:"creator"`
	Signature   string `json:"signature"`
	MetadataURI string `json:"metadataUri"`
	ImageURL    string `json:"imageUrl"`
	VideoURL    string `json:"videoUrl"`
	VideoID     string `json:"videoId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Publisher delivers minted events.
type Publisher interface {
	PublishMinted(ctx context.Context, ev MintedEvent) error
}

// Nop drops every event.
type Nop struct{}

// PublishMinted implements Publisher.
func (Nop) PublishMinted(context.Context, MintedEvent) error { return nil }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by mint address, so all events of one
// token land on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	log     zerolog.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return &KafkaPublisher{writer: writer, timeout: 10 * time.Second, log: log}, nil
}

// PublishMinted implements Publisher.
func (p *KafkaPublisher) PublishMinted(ctx context.Context, ev MintedEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	serialized, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode minted event: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Address),
		Value: serialized,
	})
	if err != nil {
		return fmt.Errorf("publish minted event: %w", err)
	}
	p.log.Debug().Str("address", ev.Address).Str("event_id", ev.ID).Msg("minted event published")
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*KafkaPublisher)(nil)
)
