// Package scanner owns the poll/diff/retain loop: it fetches events on a
// fixed interval, diffs every market against the previous tick, keeps a
// bounded history of moves and publishes read-only copies of its state.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/polymarket"
)

// Fetcher lists the current upstream events.
type Fetcher interface {
	FetchAllEvents(ctx context.Context, filter polymarket.Filter) ([]polymarket.Event, error)
}

// Mirror persists published state so it survives restarts. Loads must
// treat missing data as empty, not as an error.
type Mirror interface {
	SaveSnapshot(ctx context.Context, events []models.EventSnapshot) error
	SaveMoves(ctx context.Context, moves []models.Move) error
	SaveStatus(ctx context.Context, status models.Status) error
	LoadSnapshot(ctx context.Context) ([]models.EventSnapshot, error)
	LoadMoves(ctx context.Context) ([]models.Move, error)
}

// Observer is notified after every successful tick. OnTick runs on the
// scanning goroutine and must not block.
type Observer interface {
	OnTick(result TickResult)
}

// ErrorObserver is an optional Observer extension notified when a tick
// fails.
type ErrorObserver interface {
	OnTickError(err error)
}

// TickResult summarizes one published tick.
type TickResult struct {
	At           models.UnixTime      `json:"at"`
	Events       int                  `json:"events"`
	Markets      int                  `json:"markets"`
	Moves        []models.Move        `json:"moves"`
	Notification *models.Notification `json:"notification,omitempty"`
}

type Config struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	MaxMoves      int
	Filter        polymarket.Filter
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		ErrorCooldown: 5 * time.Second,
		MaxMoves:      DefaultHistoryCapacity,
		Filter:        polymarket.DefaultFilter(),
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMirror mirrors every publish to m.
func WithMirror(m Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithEnrichers runs the given steps, in order, between fetch and diff.
func WithEnrichers(enrichers ...polymarket.Enricher) Option {
	return func(e *Engine) { e.enrichers = append(e.enrichers, enrichers...) }
}

// WithObservers registers tick observers.
func WithObservers(observers ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, observers...) }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how move IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine is the single owner of the scanner state.
type Engine struct {
	fetcher   Fetcher
	config    Config
	mirror    Mirror
	enrichers []polymarket.Enricher
	observers []Observer
	now       func() time.Time
	newID     func() string

	// tickMu spans fetch and publish so ticks publish in fetch order.
	tickMu sync.Mutex

	mu         sync.Mutex
	snapshot   []models.EventSnapshot
	lastPrices map[string]models.PricePair
	history    *MoveHistory
	status     models.Status
	seq        uint64

	persistMu    sync.Mutex
	persistedSeq uint64

	rescan chan struct{}
}

// New creates an engine in the starting phase.
func New(fetcher Fetcher, config Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.ErrorCooldown <= 0 {
		config.ErrorCooldown = def.ErrorCooldown
	}
	if config.MaxMoves <= 0 {
		config.MaxMoves = def.MaxMoves
	}

	e := &Engine{
		fetcher:    fetcher,
		config:     config,
		now:        time.Now,
		newID:      uuid.NewString,
		lastPrices: make(map[string]models.PricePair),
		history:    NewMoveHistory(config.MaxMoves),
		status:     models.Status{Text: "Starting scan", Phase: models.PhaseStarting},
		rescan:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Interval returns the configured tick interval.
func (e *Engine) Interval() time.Duration {
	return e.config.Interval
}

// Run restores mirrored state, seeds the price table and then ticks every
// Interval until ctx is cancelled. A failed tick never stops the loop; the
// next attempt follows after ErrorCooldown.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("Scan loop started (interval: %v, history: %d)", e.config.Interval, e.history.Cap())

	if err := e.Restore(ctx); err != nil {
		logger.Warn("Failed to restore mirrored state: %v", err)
	}

	go e.serveRescans(ctx)

	if err := e.Seed(ctx); err != nil {
		logger.Error("Error during initial scan: %v", err)
	}

	timer := time.NewTimer(e.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scan loop stopped")
			return nil

		case <-timer.C:
			wait := e.config.Interval
			if _, err := e.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					logger.Info("Scan loop stopped")
					return nil
				}
				logger.Error("Scan error: %v", err)
				wait = e.config.ErrorCooldown
			}
			timer.Reset(wait)
		}
	}
}

// ForceRescan queues one out-of-band tick. It never interrupts a tick in
// progress; requests made while one is already queued are coalesced. The
// result reports whether a new request was queued.
func (e *Engine) ForceRescan() bool {
	select {
	case e.rescan <- struct{}{}:
		logger.Info("Manual rescan queued")
		return true
	default:
		return false
	}
}

func (e *Engine) serveRescans(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.rescan:
			if _, err := e.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Manual rescan failed: %v", err)
			}
		}
	}
}

// Restore loads the mirror's snapshot and history. Missing data leaves the
// engine empty.
func (e *Engine) Restore(ctx context.Context) error {
	if e.mirror == nil {
		return nil
	}

	events, err := e.mirror.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	moves, err := e.mirror.LoadMoves(ctx)
	if err != nil {
		return fmt.Errorf("failed to load moves: %w", err)
	}

	kept := make([]models.EventSnapshot, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			logger.Warn("Dropping mirrored event %q: %v", ev.EventID, err)
			continue
		}
		kept = append(kept, ev.Clone())
	}
	valid := make([]models.Move, 0, len(moves))
	for _, m := range moves {
		if err := m.Validate(); err != nil {
			logger.Warn("Dropping mirrored move %q: %v", m.ID, err)
			continue
		}
		valid = append(valid, m)
	}
	ordered := SortMovesChronologically(valid)

	e.mu.Lock()
	e.snapshot = kept
	e.history.Reset(ordered)
	e.status.Events = len(kept)
	e.status.Moves = e.history.Len()
	e.mu.Unlock()

	logger.Info("Restored %d events and %d moves from mirror", len(kept), len(ordered))
	return nil
}

// Seed runs the one-time initial scan: it fills the last-price table and
// publishes snapshots with zero deltas, recording no moves. On failure the
// engine still moves on to scanning with an empty table.
func (e *Engine) Seed(ctx context.Context) (err error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initial scan panicked: %v", r)
			e.fail(ctx, "Error during initial scan", err)
		}
	}()

	e.setPhase(ctx, models.PhaseSeeding, "Initial scan")

	events, err := e.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(ctx, "Error during initial scan", err)
		}
		return err
	}

	diff := e.publish(ctx, events, true)
	logger.Info("Initial scan completed, found %d events (%d markets)", len(diff.snapshots), diff.markets)
	return nil
}

// Tick fetches once, diffs against the previous tick and publishes the
// result. Concurrent calls run one at a time. A fetch failure leaves snapshot and history untouched and only
// updates the status text. Panics are recovered into errors.
func (e *Engine) Tick(ctx context.Context) (result TickResult, err error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
			e.fail(ctx, "Scan error", err)
		}
	}()

	start := e.now()
	events, err := e.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(ctx, "Scan error", err)
		}
		return TickResult{}, err
	}

	diff := e.publish(ctx, events, false)

	result = TickResult{
		At:           models.NewUnixTime(start),
		Events:       len(diff.snapshots),
		Markets:      diff.markets,
		Moves:        diff.moves,
		Notification: models.NotificationFor(diff.moves),
	}
	logger.Info("Scanned %d events, found %d moves", result.Events, len(result.Moves))

	for _, o := range e.observers {
		o.OnTick(result)
	}
	return result, nil
}

func (e *Engine) fetch(ctx context.Context) ([]polymarket.Event, error) {
	events, err := e.fetcher.FetchAllEvents(ctx, e.config.Filter)
	if err != nil {
		// Partial listings are discarded: diffing them would evict every
		// event on the pages that failed.
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	for _, en := range e.enrichers {
		events, err = en.Enrich(ctx, events)
		if err != nil {
			return nil, fmt.Errorf("failed to enrich events: %w", err)
		}
	}
	return events, nil
}

// publish diffs and swaps in the new state under a single critical
// section, then mirrors it outside the lock.
func (e *Engine) publish(ctx context.Context, events []polymarket.Event, baseline bool) tickDiff {
	now := models.NewUnixTime(e.now())

	diff, job := func() (tickDiff, persistJob) {
		e.mu.Lock()
		defer e.mu.Unlock()

		diff := diffEvents(events, e.lastPrices, now, e.newID, baseline)
		e.history.Append(diff.moves...)
		e.snapshot = diff.snapshots

		text := fmt.Sprintf("Updated %d events with markets", len(diff.snapshots))
		if baseline {
			text = fmt.Sprintf("Initial scan completed, found %d events", len(diff.snapshots))
		}
		e.status = models.Status{
			Text:         text,
			LastUpdate:   now,
			Phase:        models.PhaseScanning,
			Notification: models.NotificationFor(diff.moves),
			Events:       len(diff.snapshots),
			Moves:        e.history.Len(),
		}
		return diff, e.persistJobLocked()
	}()

	e.persist(ctx, job)
	return diff
}

// fail records a degraded tick: the status text and error change, nothing
// else does.
func (e *Engine) fail(ctx context.Context, prefix string, err error) {
	msg := err.Error()
	if runes := []rune(msg); len(runes) > 100 {
		msg = string(runes[:100])
	}

	e.mu.Lock()
	e.status.Text = fmt.Sprintf("%s: %s", prefix, msg)
	e.status.LastError = err.Error()
	e.status.Notification = nil
	if e.status.Phase == models.PhaseSeeding {
		e.status.Phase = models.PhaseScanning
	}
	job := e.persistJobLocked()
	e.mu.Unlock()

	e.persist(ctx, job)

	for _, o := range e.observers {
		if eo, ok := o.(ErrorObserver); ok {
			eo.OnTickError(err)
		}
	}
}

func (e *Engine) setPhase(ctx context.Context, phase models.Phase, text string) {
	e.mu.Lock()
	e.status.Phase = phase
	e.status.Text = text
	job := e.persistJobLocked()
	e.mu.Unlock()

	e.persist(ctx, job)
}

type persistJob struct {
	seq      uint64
	snapshot []models.EventSnapshot
	moves    []models.Move
	status   models.Status
}

// persistJobLocked captures a copy of the state to mirror. e.mu must be held.
func (e *Engine) persistJobLocked() persistJob {
	e.seq++
	if e.mirror == nil {
		return persistJob{seq: e.seq}
	}
	return persistJob{
		seq:      e.seq,
		snapshot: models.CloneSnapshots(e.snapshot),
		moves:    e.history.Moves(),
		status:   e.status.Clone(),
	}
}

// persist writes a job to the mirror unless a newer one already landed.
func (e *Engine) persist(ctx context.Context, job persistJob) {
	if e.mirror == nil {
		return
	}

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if job.seq <= e.persistedSeq {
		return
	}
	e.persistedSeq = job.seq

	// Use a detached context so shutdown does not leave half-written state.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var errs []error
	if err := e.mirror.SaveSnapshot(wctx, job.snapshot); err != nil {
		errs = append(errs, fmt.Errorf("snapshot: %w", err))
	}
	if err := e.mirror.SaveMoves(wctx, job.moves); err != nil {
		errs = append(errs, fmt.Errorf("moves: %w", err))
	}
	if err := e.mirror.SaveStatus(wctx, job.status); err != nil {
		errs = append(errs, fmt.Errorf("status: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Failed to mirror scanner state: %v", err)
	}
}

// Snapshot returns a deep copy of the current event snapshots.
func (e *Engine) Snapshot() []models.EventSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneSnapshots(e.snapshot)
}

// RecentMoves returns moves stamped at or after since, oldest first. A
// zero since returns the whole history.
func (e *Engine) RecentMoves(since time.Time) []models.Move {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Since(models.UnixTime{Time: since})
}

// Status returns the current status.
func (e *Engine) Status() models.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Clone()
}

// LastPrices returns a copy of the last-price table.
func (e *Engine) LastPrices() map[string]models.PricePair {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]models.PricePair, len(e.lastPrices))
	for k, v := range e.lastPrices {
		out[k] = v
	}
	return out
}

// View returns the snapshot and history from the same critical section.
func (e *Engine) View() ([]models.EventSnapshot, []models.Move) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneSnapshots(e.snapshot), e.history.Moves()
}

// GetSnapshot returns the snapshot in the requested order. The recent
// window is the Interval preceding the newest recorded move.
func (e *Engine) GetSnapshot(order SnapshotOrder) []models.EventSnapshot {
	events, moves := e.View()
	switch order {
	case OrderByRecentMagnitude:
		latest := e.now()
		if n := len(moves); n > 0 {
			latest = moves[n-1].Time.Time
		}
		return SortByRecentMagnitude(events, moves, latest.Add(-e.config.Interval))
	default:
		return SortByTime(events, moves)
	}
}

// GetRecentMoves returns moves no older than maxAge in the requested
// order. A non-positive maxAge returns the whole history.
func (e *Engine) GetRecentMoves(maxAge time.Duration, order MoveOrder) []models.Move {
	var since time.Time
	if maxAge > 0 {
		since = e.now().Add(-maxAge)
	}
	moves := e.RecentMoves(since)
	switch order {
	case MovesByMagnitude:
		return SortMovesByMagnitude(moves)
	default:
		return SortMovesByTime(moves)
	}
}
