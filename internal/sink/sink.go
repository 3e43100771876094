// Package sink delivers new evidence downstream. A batch that a sink
// rejects is never marked sent, so the next run delivers it again.
package sink

import (
	"context"
	"fmt"

	"github.com/ppiankov/painpoint/internal/model"
)

// Batch is one bounded delivery unit.
type Batch struct {
	RunID        string
	Number       int // 1-based
	Total        int
	TotalRecords int
	Signals      []model.Signal
}

// Sink accepts batches of new signals.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batch Batch) error
}

// DeliveryError is a non-2xx answer from a downstream endpoint.
type DeliveryError struct {
	Sink       string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s delivery rejected with status %d: %s", e.Sink, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s delivery rejected with status %d", e.Sink, e.StatusCode)
}

// Split cuts signals into batches of at most size records.
func Split(signals []model.Signal, size int, runID string) []Batch {
	if len(signals) == 0 {
		return nil
	}
	if size <= 0 {
		size = 100
	}

	total := (len(signals) + size - 1) / size
	batches := make([]Batch, 0, total)
	for i := 0; i < len(signals); i += size {
		end := i + size
		if end > len(signals) {
			end = len(signals)
		}
		batches = append(batches, Batch{
			RunID:        runID,
			Number:       i/size + 1,
			Total:        total,
			TotalRecords: len(signals),
			Signals:      signals[i:end],
		})
	}
	return batches
}

// MultiSink delivers to each sink in order and stops at the first failure.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string { return "multi" }

// Deliver succeeds only if every sink accepted the batch.
func (m *MultiSink) Deliver(ctx context.Context, batch Batch) error {
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, batch); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Discard accepts every batch. Used when no downstream is configured.
type Discard struct{}

func (Discard) Name() string { return "discard" }

func (Discard) Deliver(context.Context, Batch) error { return nil }
