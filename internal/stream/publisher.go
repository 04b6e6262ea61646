package stream

import (
	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// ChangePublisher publishes applied change records to NATS for downstream
// consumers (indexers, UIs, reconciliation jobs). Subjects follow
// synth.ledger.changes.{change_type}. Publishing is best effort: the
// change log in Postgres is the source of truth and consumers can
// backfill from it.
type ChangePublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// ChangeMessage is the wire form of a published change.
type ChangeMessage struct {
	Sequence   int64         `json:"sequence"`
	ChangeType string        `json:"change_type"`
	Change     *event.Change `json:"change"`
	StateHash  []byte        `json:"state_hash"`
	PrevHash   []byte        `json:"prev_hash"`
	Timestamp  time.Time     `json:"timestamp"`
}

func NewChangePublisher(
	js jetstream.JetStream,
	inputChan <-chan core.Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *ChangePublisher {
	return &ChangePublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the
// input channel closes.
func (cp *ChangePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-cp.inputChan:
			if !ok {
				return nil
			}

			if err := cp.publish(ctx, out.Record); err != nil {
				cp.log.Warn().
					Err(err).
					Int64("sequence", out.Record.Sequence).
					Msg("outbound publish failed")
				if cp.metrics != nil {
					cp.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

func (cp *ChangePublisher) publish(ctx context.Context, rec *event.Record) error {
	msg := ChangeMessage{
		Sequence:   rec.Sequence,
		ChangeType: rec.Change.Type.String(),
		Change:     rec.Change,
		StateHash:  rec.StateHash[:],
		PrevHash:   rec.PrevHash[:],
		Timestamp:  rec.Timestamp,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal change message: %w", err)
	}

	subject := "synth.ledger.changes." + strings.ToLower(rec.Change.Type.String())
	_, err = cp.js.Publish(ctx, subject, data)
	return err
}

// EnsureChangeStream creates or updates the outbound change stream.
func EnsureChangeStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SYNTH_LEDGER_CHANGES",
		Subjects:  []string{"synth.ledger.changes.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create change stream: %w", err)
	}
	return nil
}
