package editor

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/wire"
)

// receiptTTL bounds how long a save receipt is kept for deduplication.
const receiptTTL = 10 * time.Minute

// Session is the editing-session controller for one layout page. Mutations
// apply to the in-memory layout immediately; persistence happens through a
// trailing-edge debounced save that restarts on every edit. The timer handle
// is the session's only mutable shared resource and is owned exclusively here.
type Session struct {
	ID string

	mu       sync.Mutex
	ref      store.LayoutRef
	current  layout.Layout
	version  int
	renames  []store.IDChange
	dirty    bool
	timer    *time.Timer
	closed   bool
	savedBy  string
	debounce time.Duration
	lastUsed time.Time

	layouts store.LayoutStore
	idem    IdempotencyStore
	log     *zap.Logger

	// onDedup, when set, is called for every save answered from the
	// idempotency store.
	onDedup func()
}

// NewSession starts an editing session over a loaded layout page.
func NewSession(
	ref store.LayoutRef,
	initial layout.Layout,
	version int,
	layouts store.LayoutStore,
	idem IdempotencyStore,
	debounce time.Duration,
	savedBy string,
	log *zap.Logger,
) *Session {
	return &Session{
		ID:       uuid.NewString(),
		ref:      ref,
		current:  initial.Clone(),
		version:  version,
		debounce: debounce,
		savedBy:  savedBy,
		lastUsed: time.Now(),
		layouts:  layouts,
		idem:     idem,
		log:      log,
	}
}

// touch records that the session was used.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// idleSince returns how long the session has gone unused.
func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsed)
}

// Layout returns a copy of the session's current layout.
func (s *Session) Layout() layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Version returns the last persisted version the session knows about.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Apply runs a mutation against the current layout and schedules a save. The
// mutation receives a clone, so a failed or partial mutation can simply return
// the input unchanged.
func (s *Session) Apply(mutate func(layout.Layout) layout.Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.current = mutate(s.current.Clone())
	s.dirty = true
	s.scheduleLocked()
}

// ApplyRename runs a mutation that renames an item and records the id change
// for the next save, so the backend can propagate the rename.
func (s *Session) ApplyRename(oldID, newID string, mutate func(layout.Layout) layout.Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.current = mutate(s.current.Clone())
	s.renames = append(s.renames, store.IDChange{OldComponentID: oldID, NewComponentID: newID})
	s.dirty = true
	s.scheduleLocked()
}

// scheduleLocked restarts the single debounce timer. Caller holds s.mu.
func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.log.Error("debounced save failed",
				zap.String("layout", s.ref.Key()),
				zap.String("session_id", s.ID),
				zap.Error(err))
		}
	})
}

// Flush persists the current layout immediately if there are unsaved edits,
// cancelling any pending debounced save. Page switches call this before
// discarding the session, so no edit is silently lost on navigation.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.current.Clone()
	version := s.version
	renames := s.renames
	s.renames = nil
	s.dirty = false
	s.mu.Unlock()

	receipt, err := s.save(ctx, snapshot, version, renames)
	if err != nil {
		// Put the rename list back so the retry still carries it.
		s.mu.Lock()
		s.renames = append(renames, s.renames...)
		s.dirty = true
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.version = receipt.Version
	s.mu.Unlock()
	return nil
}

// Close flushes pending edits and stops the session.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return err
}

// save converts the layout to wire form and persists it, deduplicating
// retried saves of an identical payload through the idempotency store.
func (s *Session) save(ctx context.Context, snapshot layout.Layout, version int, renames []store.IDChange) (SaveReceipt, error) {
	ext := wire.FromInternal(snapshot)
	payload, err := json.Marshal(ext)
	if err != nil {
		return SaveReceipt{}, fmt.Errorf("marshal layout: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(payload))
	key := FormatSaveKey(s.ref.Key(), fmt.Sprintf("v%d", version))

	if cached, found, err := s.idem.Check(ctx, key, hash); err == nil && found {
		if s.onDedup != nil {
			s.onDedup()
		}
		s.log.Debug("save deduplicated",
			zap.String("layout", s.ref.Key()),
			zap.Int("version", cached.Version))
		return *cached, nil
	}

	rec, err := s.layouts.Save(ctx, s.ref, store.SaveRequest{
		Layout:             ext,
		Version:            version,
		ComponentIDsChange: renames,
		SavedBy:            s.savedBy,
	})
	if err != nil {
		return SaveReceipt{}, err
	}

	receipt := SaveReceipt{Page: s.ref.Page, Version: rec.Version, SavedAt: rec.UpdatedAt}
	if err := s.idem.Store(ctx, key, hash, receipt, receiptTTL); err != nil {
		s.log.Warn("storing save receipt failed",
			zap.String("layout", s.ref.Key()),
			zap.Error(err))
	}

	s.log.Info("layout saved",
		zap.String("layout", s.ref.Key()),
		zap.Int("version", receipt.Version),
		zap.Int("renames", len(renames)))
	return receipt, nil
}
