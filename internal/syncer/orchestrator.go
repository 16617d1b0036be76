// Package syncer provides the connectivity- and timer-driven scheduler that
// keeps local state converging with the remote authority: full store
// reloads plus one replay pass per cycle.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"tillsync/internal/queue"
	"tillsync/internal/remote"
	"tillsync/internal/replay"
	"tillsync/pkg/logger"
)

// DefaultInterval is the periodic sync period.
const DefaultInterval = 30 * time.Second

// Syncable is the slice of an entity store the orchestrator drives.
type Syncable interface {
	Kind() string
	SyncWithServer(ctx context.Context) error
}

// State is the aggregate sync status exposed to the UI.
// Derived and ephemeral; only LastSyncTime would be worth persisting.
type State struct {
	IsOnline       bool      `json:"isOnline"`
	IsSyncing      bool      `json:"isSyncing"`
	LastSyncTime   time.Time `json:"lastSyncTime"`
	PendingChanges int       `json:"pendingChanges"`
}

// Config configures the orchestrator.
type Config struct {
	Probe    remote.Probe
	Engine   *replay.Engine
	Queue    queue.Queue
	Interval time.Duration // defaults to DefaultInterval
	Log      *logger.Logger
	Tracer   trace.Tracer
}

// Orchestrator schedules sync cycles. The isSyncing flag is a best-effort
// guard, not a strict mutex: overlapping triggers coalesce into at most one
// in-flight cycle, and a concurrent trigger while syncing is ignored.
type Orchestrator struct {
	probe    remote.Probe
	engine   *replay.Engine
	queue    queue.Queue
	interval time.Duration
	log      *logger.Logger
	tracer   trace.Tracer

	stores []Syncable

	isSyncing atomic.Bool
	online    atomic.Bool

	mu       sync.RWMutex
	lastSync time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Orchestrator{
		probe:    cfg.Probe,
		engine:   cfg.Engine,
		queue:    cfg.Queue,
		interval: interval,
		log:      log.WithComponent("syncer"),
		tracer:   tracer,
	}
}

// Register adds a store to the sync cycle. Not safe to call after Start.
func (o *Orchestrator) Register(s Syncable) {
	o.stores = append(o.stores, s)
}

// Start launches the background loop: a fixed-interval ticker plus
// connectivity polling, syncing on each tick while online and immediately
// on the offline-to-online transition. The loop stops when ctx is cancelled
// or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx)
	}()
}

// Stop deterministically terminates background activity. Safe for tests and
// shutdown paths.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context) {
	// Probe more often than we sync so the offline-to-online transition is
	// caught promptly.
	probeEvery := o.interval / 6
	if probeEvery < time.Second {
		probeEvery = time.Second
	}
	probeTicker := time.NewTicker(probeEvery)
	defer probeTicker.Stop()

	syncTicker := time.NewTicker(o.interval)
	defer syncTicker.Stop()

	o.online.Store(o.probe.Online(ctx))
	if o.online.Load() {
		o.runCycle(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-probeTicker.C:
			wasOnline := o.online.Load()
			nowOnline := o.probe.Online(ctx)
			o.online.Store(nowOnline)
			if !wasOnline && nowOnline {
				o.log.Infow("connectivity restored, syncing")
				o.runCycle(ctx)
			}

		case <-syncTicker.C:
			if o.online.Load() {
				o.runCycle(ctx)
			}
		}
	}
}

// ManualSync triggers one cycle immediately. A call while a cycle is in
// flight is ignored, not queued.
func (o *Orchestrator) ManualSync(ctx context.Context) {
	o.online.Store(o.probe.Online(ctx))
	if !o.online.Load() {
		o.log.Debugw("manual sync skipped, offline")
		return
	}
	o.runCycle(ctx)
}

// runCycle performs one full cycle: every registered store reloads from the
// server, then one replay pass drains the queue. Coalesced by isSyncing.
func (o *Orchestrator) runCycle(ctx context.Context) {
	if !o.isSyncing.CompareAndSwap(false, true) {
		return
	}
	defer o.isSyncing.Store(false)

	ctx, span := o.tracer.Start(ctx, "syncer.cycle")
	defer span.End()

	for _, s := range o.stores {
		if err := s.SyncWithServer(ctx); err != nil {
			// Partial failure: other stores still sync this cycle.
			o.log.Warnw("store sync failed", "kind", s.Kind(), "error", err)
		}
	}

	report, err := o.engine.Run(ctx)
	if err != nil {
		o.log.Warnw("replay pass failed", "error", err)
	} else if report.Processed > 0 {
		o.log.Infow("replay pass finished",
			"processed", report.Processed,
			"synced", report.Synced,
			"failed", report.Failed,
			"deferred", report.Deferred,
		)
	}
	span.SetAttributes(attribute.Int("syncer.replayed", report.Synced))

	o.mu.Lock()
	o.lastSync = time.Now().UTC()
	o.mu.Unlock()
}

// State returns the current aggregate sync status.
func (o *Orchestrator) State(ctx context.Context) State {
	o.mu.RLock()
	lastSync := o.lastSync
	o.mu.RUnlock()

	pending, err := o.queue.CountUnsynced(ctx)
	if err != nil {
		o.log.Warnw("pending count unavailable", "error", err)
	}

	return State{
		IsOnline:       o.online.Load(),
		IsSyncing:      o.isSyncing.Load(),
		LastSyncTime:   lastSync,
		PendingChanges: pending,
	}
}
