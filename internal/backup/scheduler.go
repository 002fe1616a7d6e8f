package backup

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs snapshot-and-prune on a fixed interval in the background.
//
// Start and Stop are idempotent and safe for concurrent use. A panicking
// run is logged and the scheduler keeps going; a single bad run must not
// end periodic backups.
type Scheduler struct {
	interval time.Duration
	svc      *Service
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewScheduler creates a backup scheduler (default interval 6h).
func NewScheduler(svc *Service, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if svc == nil {
		return nil, errors.New("backup service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Scheduler{
		interval: interval,
		svc:      svc,
		logger:   logger.Named("backup.scheduler"),
	}, nil
}

// Start begins periodic backups. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("backup scheduler already running")
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("backup scheduler started", zap.Duration("interval", s.interval))
	go s.run(s.stopCh)
	return nil
}

// Stop ends periodic backups. Calling Stop on a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info("backup scheduler stopped")
}

func (s *Scheduler) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun()
		case <-stopCh:
			return
		}
	}
}

// safeRun executes one snapshot-and-prune cycle under panic recovery.
func (s *Scheduler) safeRun() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backup run panicked, scheduler continuing",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.svc.Snapshot(ctx); err != nil {
		s.logger.Warn("scheduled snapshot failed", zap.Error(err))
		return
	}
	if _, err := s.svc.Prune(ctx); err != nil {
		s.logger.Warn("scheduled prune failed", zap.Error(err))
	}
}
