package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

//go:generate mockgen -source=kafka.go -destination=mock_kafka.go -package=notify

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ScanEvent is the payload published for every recorded scan.
type ScanEvent struct {
	Barcode   string `json:"barcode"`
	Outcome   string `json:"outcome"`
	ScannedAt string `json:"scanned_at"`
	FirstSeen string `json:"first_seen"`
}

// KafkaPublisher streams scan outcomes to a topic, keyed by barcode so all
// events for one code land on the same partition.
type KafkaPublisher struct {
	writer KafkaWriter
}

func NewKafkaPublisher(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// NewKafkaWriter builds a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaPublisher) ObserveScan(ctx context.Context, res ledger.Result) {
	if p.writer == nil {
		return
	}

	data, err := json.Marshal(ScanEvent{
		Barcode:   res.Barcode,
		Outcome:   res.Outcome.String(),
		ScannedAt: storage.FormatTimestamp(res.ScannedAt),
		FirstSeen: storage.FormatTimestamp(res.FirstSeen),
	})
	if err != nil {
		logger.Log.Errorw("failed to marshal scan event", "barcode", res.Barcode, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(res.Barcode),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("failed to publish scan event", "barcode", res.Barcode, "error", err)
		return
	}
	logger.Log.Debugw("scan event published", "barcode", res.Barcode, "outcome", res.Outcome.String())
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
