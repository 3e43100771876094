// Package dedup keeps previously delivered evidence from being delivered
// again. Records are keyed by content, not by enrichment, so re-scoring or
// re-enriching the same event never produces a new key.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
)

// ErrLedgerUnusable means the ledger cannot be written at all. Starting a run
// against it would silently lose dedup state, so callers abort.
var ErrLedgerUnusable = errors.New("dedup ledger unusable")

// LedgerStore persists the set of sent hashes across runs.
type LedgerStore interface {
	// Load returns every committed hash.
	Load(ctx context.Context) ([]string, error)
	// Commit appends hashes. It never removes any.
	Commit(ctx context.Context, hashes []string) error
	// Check verifies at startup that the store is usable.
	Check(ctx context.Context) error
}

// Key returns the content hash of a signal:
// sha256(lower(trim(company_name)) | event date | source).
func Key(s model.Signal) string {
	date := ""
	if s.Dated() {
		date = s.SignalDate.UTC().Format(time.RFC3339)
	}
	name := strings.ToLower(strings.TrimSpace(s.CompanyName))
	sum := sha256.Sum256([]byte(name + "|" + date + "|" + s.Source))
	return hex.EncodeToString(sum[:])
}

// Deduplicator classifies signals as new or already sent.
type Deduplicator struct {
	store  LedgerStore
	logger *slog.Logger

	loadOnce sync.Once
	mu       sync.Mutex
	sent     map[string]struct{}
	pending  map[string]struct{}
}

// New creates a deduplicator over the given ledger store.
func New(store LedgerStore, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		store:   store,
		logger:  logging.OrDefault(logger),
		sent:    make(map[string]struct{}),
		pending: make(map[string]struct{}),
	}
}

// load reads the ledger once per run. An unreadable ledger is treated as
// empty so new evidence is never dropped.
func (d *Deduplicator) load(ctx context.Context) {
	d.loadOnce.Do(func() {
		hashes, err := d.store.Load(ctx)
		if err != nil {
			d.logger.Warn("dedup ledger unreadable, treating as empty", logging.Error(err))
			return
		}

		d.mu.Lock()
		for _, h := range hashes {
			d.sent[h] = struct{}{}
		}
		d.mu.Unlock()

		d.logger.Debug("dedup ledger loaded", logging.Count(len(hashes)))
	})
}

// IsNew reports whether the signal has not been sent before and has not
// already been seen earlier in this run. A new signal is held as pending
// until MarkSent or Release.
func (d *Deduplicator) IsNew(ctx context.Context, s model.Signal) bool {
	d.load(ctx)

	key := Key(s)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sent[key]; ok {
		return false
	}
	if _, ok := d.pending[key]; ok {
		return false
	}
	d.pending[key] = struct{}{}
	return true
}

// Filter returns the new signals in input order and the number of duplicates.
func (d *Deduplicator) Filter(ctx context.Context, signals []model.Signal) ([]model.Signal, int) {
	fresh := make([]model.Signal, 0, len(signals))
	dups := 0
	for _, s := range signals {
		if d.IsNew(ctx, s) {
			fresh = append(fresh, s)
		} else {
			dups++
		}
	}
	return fresh, dups
}

// MarkSent commits the hashes of delivered signals to the ledger. Call it
// only after the sink accepted the batch.
func (d *Deduplicator) MarkSent(ctx context.Context, signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	d.load(ctx)

	hashes := make([]string, 0, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		key := Key(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		hashes = append(hashes, key)
	}

	if err := d.store.Commit(ctx, hashes); err != nil {
		return fmt.Errorf("commit %d hashes: %w", len(hashes), err)
	}

	d.mu.Lock()
	for _, h := range hashes {
		d.sent[h] = struct{}{}
		delete(d.pending, h)
	}
	d.mu.Unlock()
	return nil
}

// Release drops signals from the pending set after a failed delivery so a
// retry within the same run classifies them as new again.
func (d *Deduplicator) Release(signals []model.Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range signals {
		delete(d.pending, Key(s))
	}
}

// Size returns the number of committed hashes known to this run.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}
