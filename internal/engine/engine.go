// Package engine assembles and runs the retrieval engine.
//
// The Engine is the single composition root: it owns the persistence
// adapter, vectorizer, knowledge store, conversation cache, search client,
// feedback loop, orchestrator, and backup service, plus the background
// maintenance loops. Everything is passed explicitly; no package-level
// singletons.
//
// Example usage:
//
//	eng, err := engine.New(cfg, logger)
//	if err != nil {
//	    // Handle error
//	}
//	eng.Start()
//	defer eng.Stop(ctx)
//	resp, err := eng.Ask(ctx, orchestrator.Request{Query: "hello"})
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/backup"
	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/feedback"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
	"github.com/fyrsmithlabs/recalld/internal/persistence"
	"github.com/fyrsmithlabs/recalld/internal/vectorizer"
	"github.com/fyrsmithlabs/recalld/internal/websearch"
)

// Engine owns every engine component and their lifecycles.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	adapter persistence.Adapter

	Vectorizer   *vectorizer.Vectorizer
	Store        *knowledge.Store
	Cache        *memory.Cache
	Search       websearch.Searcher
	Feedback     *feedback.Service
	Orchestrator *orchestrator.Orchestrator
	Backup       *backup.Service

	backupScheduler *backup.Scheduler

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds an engine from config. Construction loads persisted state;
// background loops start only on Start.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter, err := newAdapter(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating persistence adapter: %w", err)
	}

	vec, err := vectorizer.New(vectorizer.Config{Dimension: cfg.Vectorizer.Dimension})
	if err != nil {
		return nil, fmt.Errorf("creating vectorizer: %w", err)
	}

	store, err := knowledge.NewStore(vec, adapter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	cache, err := memory.NewCache(memory.CacheConfig{
		MaxEntries:      cfg.Memory.MaxEntries,
		RetentionWindow: cfg.Memory.RetentionWindow,
	}, vec, adapter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation cache: %w", err)
	}

	var search websearch.Searcher = websearch.Disabled
	if cfg.Search.Enabled {
		search = websearch.NewClient(
			[]websearch.Provider{websearch.NewDuckDuckGoProvider(nil)},
			websearch.ClientConfig{
				ProviderTimeout: cfg.Search.ProviderTimeout,
				RatePerMinute:   cfg.Search.RatePerMinute,
				MaxResults:      cfg.Search.MaxResults,
			},
			logger,
		)
	}

	ledger := feedback.NewLedger(0)
	fb, err := feedback.NewService(store, cache, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("creating feedback service: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		LocalAnswerThreshold: cfg.Orchestrator.LocalAnswerThreshold,
		MinLocalConfidence:   cfg.Orchestrator.MinLocalConfidence,
		WebUsableRelevance:   cfg.Orchestrator.WebUsableRelevance,
		WebLearnRelevance:    cfg.Orchestrator.WebLearnRelevance,
		WebLearnCap:          cfg.Orchestrator.WebLearnCap,
		MaxLocalResults:      cfg.Orchestrator.MaxLocalResults,
	}, vec, store, cache, search, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	bk, err := backup.NewService(store, adapter, backup.ServiceConfig{
		Keep:       cfg.Backup.Keep,
		StaleAfter: cfg.Backup.StaleAfter,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating backup service: %w", err)
	}

	var bkSched *backup.Scheduler
	if cfg.Backup.Enabled {
		bkSched, err = backup.NewScheduler(bk, cfg.Backup.Interval, logger)
		if err != nil {
			return nil, fmt.Errorf("creating backup scheduler: %w", err)
		}
	}

	return &Engine{
		cfg:             cfg,
		logger:          logger.Named("engine"),
		adapter:         adapter,
		Vectorizer:      vec,
		Store:           store,
		Cache:           cache,
		Search:          search,
		Feedback:        fb,
		Orchestrator:    orch,
		Backup:          bk,
		backupScheduler: bkSched,
	}, nil
}

// newAdapter selects the persistence substrate.
func newAdapter(cfg config.StorageConfig) (persistence.Adapter, error) {
	switch cfg.Substrate {
	case "memory":
		return persistence.NewMemoryAdapter(), nil
	case "filesystem":
		return persistence.NewFilesystemAdapter(cfg.Path)
	case "sqlite":
		return persistence.NewSQLiteAdapter(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage substrate %q", cfg.Substrate)
	}
}

// Start launches the background maintenance loops. Idempotent.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}
	e.stopCh = make(chan struct{})
	e.running = true

	if e.backupScheduler != nil {
		if err := e.backupScheduler.Start(); err != nil {
			e.running = false
			return err
		}
	}

	e.wg.Add(1)
	go e.maintenanceLoop(e.stopCh)

	e.logger.Info("engine started",
		zap.String("substrate", e.cfg.Storage.Substrate),
		zap.Int("knowledge_entries", e.Store.Len()),
		zap.Int("cached_turns", e.Cache.Len()),
	)
	return nil
}

// Stop ends the background loops and closes the persistence adapter.
// Safe to call on an engine that was never started.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.running = false
		close(e.stopCh)
	}
	e.mu.Unlock()

	if e.backupScheduler != nil {
		e.backupScheduler.Stop()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if closer, ok := e.adapter.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("closing persistence adapter: %w", err)
		}
	}

	e.logger.Info("engine stopped")
	return nil
}

// maintenanceLoop runs periodic cache optimization and knowledge cleanup.
func (e *Engine) maintenanceLoop(stopCh chan struct{}) {
	defer e.wg.Done()

	optimize := time.NewTicker(e.cfg.Memory.OptimizeInterval)
	defer optimize.Stop()
	cleanup := time.NewTicker(e.cfg.Knowledge.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-optimize.C:
			e.safeMaintenance("cache optimize", func() {
				result := e.Cache.Optimize()
				if result.Evicted > 0 {
					e.logger.Debug("scheduled cache optimization",
						zap.Int("evicted", result.Evicted),
					)
				}
			})
		case <-cleanup.C:
			e.safeMaintenance("knowledge cleanup", func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				e.Store.Cleanup(ctx, e.cfg.Knowledge.CleanupMaxAge, e.cfg.Knowledge.CleanupMinConfidence)
			})
		case <-stopCh:
			return
		}
	}
}

// safeMaintenance runs one maintenance task under panic recovery. A single
// bad run must not end the schedules.
func (e *Engine) safeMaintenance(task string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("maintenance task panicked, loop continuing",
				zap.String("task", task),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}

// Ask answers one query through the orchestrator.
func (e *Engine) Ask(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	return e.Orchestrator.Respond(ctx, req)
}

// Rate applies user feedback to a turn.
func (e *Engine) Rate(ctx context.Context, turnID string, rating int, comments string) error {
	return e.Feedback.Rate(ctx, turnID, rating, comments)
}
