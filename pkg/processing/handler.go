package processing

import (
	"context"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
)

// ScanRecorder represents the ledger dependency used by the handler.
type ScanRecorder interface {
	RecordScanAt(ctx context.Context, code string, at time.Time) (ledger.Result, error)
}

// DLQPublisher publishes malformed messages to a dead-letter topic.
type DLQPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message, reason string) error
}

// PubSubDLQPublisher implements DLQPublisher using a Pub/Sub topic.
type PubSubDLQPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubDLQPublisher constructs a DLQ publisher for the given topic. If the
// topic is nil, publishes are treated as no-ops.
func NewPubSubDLQPublisher(topic *pubsub.Topic) *PubSubDLQPublisher {
	return &PubSubDLQPublisher{topic: topic}
}

// Publish sends the message to the DLQ topic. If topic is nil, it is a no-op.
func (p *PubSubDLQPublisher) Publish(ctx context.Context, msg *pubsub.Message, reason string) error {
	if p.topic == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	attrs := map[string]string{
		"reason":      reason,
		"orig_msg_id": msg.ID,
	}
	if msg.DeliveryAttempt != nil {
		attrs["delivery_attempt"] = strconv.Itoa(*msg.DeliveryAttempt)
	}
	_, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: attrs,
	}).Get(ctx)
	return err
}

// NoopDLQPublisher is used when no DLQ topic is configured.
type NoopDLQPublisher struct{}

func (n *NoopDLQPublisher) Publish(ctx context.Context, msg *pubsub.Message, reason string) error {
	return nil
}

// Handler turns Pub/Sub scan messages into ledger submissions.
type Handler struct {
	ledger ScanRecorder
	dlq    DLQPublisher
	now    func() time.Time
}

// NewHandler creates a Handler. A nil dlq drops malformed messages.
func NewHandler(l ScanRecorder, dlq DLQPublisher) *Handler {
	if dlq == nil {
		dlq = &NoopDLQPublisher{}
	}
	return &Handler{ledger: l, dlq: dlq, now: time.Now}
}

// HandleMessage processes a Pub/Sub message and returns true if it should be
// acked (even when sent to DLQ) or false to Nack (for retriable errors).
func (h *Handler) HandleMessage(ctx context.Context, msg *pubsub.Message) bool {
	scan, err := ParseScanMessage(msg.Data)
	if err != nil {
		return h.deadLetter(ctx, msg, "parse_error", err)
	}

	at, err := scan.SubmittedAt(h.now())
	if err != nil {
		return h.deadLetter(ctx, msg, "parse_error", err)
	}

	res, err := h.ledger.RecordScanAt(ctx, scan.Barcode, at)
	if err != nil {
		logger.Log.Errorw("record scan failed", "barcode", scan.Barcode, "station", scan.Station, "error", err)
		return false
	}
	if res.Outcome == ledger.OutcomeNone {
		logger.Log.Debugw("blank scan ignored", "msg_id", msg.ID, "station", scan.Station)
		return true
	}

	logger.Log.Infow("station scan processed",
		"barcode", res.Barcode,
		"station", scan.Station,
		"outcome", res.Outcome.String(),
	)
	return true
}

func (h *Handler) deadLetter(ctx context.Context, msg *pubsub.Message, reason string, cause error) bool {
	logger.Log.Warnw("pushing message to DLQ", "msg_id", msg.ID, "reason", reason, "error", cause)
	if err := h.dlq.Publish(ctx, msg, reason); err != nil {
		logger.Log.Errorw("error publishing to DLQ", "msg_id", msg.ID, "error", err)
		return false
	}
	return true
}
