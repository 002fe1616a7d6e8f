// Package backup provides knowledge snapshots and restore.
//
// A snapshot is one self-contained JSON document holding every knowledge
// entry plus integrity metadata. Restore is all-or-nothing: the snapshot is
// fully validated before the store mutates, so a corrupt backup can never
// leave the store half-replaced.
//
// Example usage:
//
//	svc, err := backup.NewService(store, adapter, backup.ServiceConfig{}, logger)
//	if err != nil {
//	    // Handle error
//	}
//	snap, _ := svc.Snapshot(ctx)
//	err = svc.Restore(ctx, snap.ID)
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/persistence"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/backup"

const (
	backupKeyPrefix = "backup/snapshot/"

	// snapshotVersion guards against restoring documents written by an
	// incompatible format.
	snapshotVersion = 1

	// defaultKeep is how many snapshots Prune retains.
	defaultKeep = 48
)

var (
	// ErrSnapshotNotFound indicates an unknown snapshot id, or no
	// snapshots at all for RestoreLatest.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCorruptSnapshot indicates a snapshot that fails validation.
	// Restore refuses it without touching the store.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Snapshot is one point-in-time copy of the knowledge store.
type Snapshot struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Version    int               `json:"version"`
	EntryCount int               `json:"entry_count"`
	Entries    []knowledge.Entry `json:"entries"`
	Stats      knowledge.Stats   `json:"stats"`
}

// ServiceConfig tunes the backup service.
type ServiceConfig struct {
	// Keep is how many snapshots Prune retains, oldest dropped first
	// (default 48).
	Keep int `koanf:"keep"`

	// StaleAfter marks storage unhealthy when the newest snapshot is
	// older than this (default 24h). Zero disables the check.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// StorageInfo reports backup storage health.
type StorageInfo struct {
	BackupCount    int       `json:"backup_count"`
	SizeBytes      int64     `json:"size_bytes"`
	LatestBackup   time.Time `json:"latest_backup,omitempty"`
	EntryCount     int       `json:"entry_count"`
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
}

// Service creates, restores, and prunes snapshots.
type Service struct {
	cfg     ServiceConfig
	store   *knowledge.Store
	adapter persistence.Adapter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService creates a backup service writing snapshots through the given
// adapter.
func NewService(store *knowledge.Store, adapter persistence.Adapter, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("knowledge store is required")
	}
	if adapter == nil {
		return nil, errors.New("persistence adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Keep <= 0 {
		cfg.Keep = defaultKeep
	}
	if cfg.StaleAfter < 0 {
		cfg.StaleAfter = 0
	}

	return &Service{
		cfg:     cfg,
		store:   store,
		adapter: adapter,
		logger:  logger.Named("backup"),
		tracer:  otel.Tracer(instrumentationName),
	}, nil
}

// Snapshot writes a new snapshot of the current store contents.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	_, span := s.tracer.Start(ctx, "backup.snapshot")
	defer span.End()

	entries := s.store.Entries()
	snap := &Snapshot{
		ID:         ulid.Make().String(),
		CreatedAt:  time.Now(),
		Version:    snapshotVersion,
		EntryCount: len(entries),
		Entries:    entries,
		Stats:      s.store.Stats(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.adapter.Write(backupKeyPrefix+snap.ID, data); err != nil {
		SnapshotsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	SnapshotsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(
		attribute.String("snapshot_id", snap.ID),
		attribute.Int("entry_count", snap.EntryCount),
	)
	s.logger.Info("snapshot created",
		zap.String("snapshot_id", snap.ID),
		zap.Int("entries", snap.EntryCount),
	)
	return snap, nil
}

// List returns snapshot ids, oldest first. ULIDs sort chronologically.
func (s *Service) List() ([]string, error) {
	keys, err := s.adapter.List(backupKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, backupKeyPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Restore replaces the store contents with a snapshot. The snapshot is
// validated in full first; a corrupt snapshot returns ErrCorruptSnapshot
// and leaves the store untouched.
func (s *Service) Restore(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "backup.restore")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot_id", id))

	data, err := s.adapter.Read(backupKeyPrefix + id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := validateSnapshot(&snap); err != nil {
		return err
	}

	if err := s.store.ReplaceAll(ctx, snap.Entries); err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", id, err)
	}

	RestoresTotal.Inc()
	s.logger.Info("snapshot restored",
		zap.String("snapshot_id", id),
		zap.Int("entries", snap.EntryCount),
	)
	return nil
}

// RestoreLatest restores the most recent snapshot.
func (s *Service) RestoreLatest(ctx context.Context) error {
	ids, err := s.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrSnapshotNotFound
	}
	return s.Restore(ctx, ids[len(ids)-1])
}

// Prune deletes snapshots beyond the configured retention count, oldest
// first. Returns how many were removed.
func (s *Service) Prune(ctx context.Context) (int, error) {
	_, span := s.tracer.Start(ctx, "backup.prune")
	defer span.End()

	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(ids) <= s.cfg.Keep {
		return 0, nil
	}

	removed := 0
	for _, id := range ids[:len(ids)-s.cfg.Keep] {
		if err := s.adapter.Delete(backupKeyPrefix + id); err != nil {
			s.logger.Warn("pruning snapshot failed", zap.String("snapshot_id", id), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		PrunedTotal.Add(float64(removed))
		s.logger.Info("pruned snapshots", zap.Int("removed", removed), zap.Int("kept", s.cfg.Keep))
	}
	span.SetAttributes(attribute.Int("removed", removed))
	return removed, nil
}

// Info reports backup storage health. Storage is degraded when the store's
// adapter has failed, when snapshots cannot be listed or read, or when the
// newest snapshot is stale.
func (s *Service) Info(ctx context.Context) StorageInfo {
	info := StorageInfo{EntryCount: s.store.Len()}

	keys, err := s.adapter.List(backupKeyPrefix)
	if err != nil {
		info.Degraded = true
		info.DegradedReason = "listing backups failed: " + err.Error()
		return info
	}
	info.BackupCount = len(keys)

	var latest Snapshot
	for _, key := range keys {
		data, err := s.adapter.Read(key)
		if err != nil {
			info.Degraded = true
			info.DegradedReason = "reading backup failed: " + err.Error()
			continue
		}
		info.SizeBytes += int64(len(data))

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		if snap.CreatedAt.After(latest.CreatedAt) {
			latest = snap
		}
	}
	info.LatestBackup = latest.CreatedAt

	if !info.Degraded && s.store.Degraded() {
		info.Degraded = true
		info.DegradedReason = "knowledge persistence degraded"
	}
	if !info.Degraded && s.cfg.StaleAfter > 0 && info.BackupCount > 0 &&
		time.Since(latest.CreatedAt) > s.cfg.StaleAfter {
		info.Degraded = true
		info.DegradedReason = "latest backup is stale"
	}
	return info
}

// validateSnapshot checks snapshot integrity before any store mutation.
func validateSnapshot(snap *Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrCorruptSnapshot, snap.Version, snapshotVersion)
	}
	if snap.EntryCount != len(snap.Entries) {
		return fmt.Errorf("%w: header says %d entries, found %d", ErrCorruptSnapshot, snap.EntryCount, len(snap.Entries))
	}
	for i := range snap.Entries {
		e := &snap.Entries[i]
		if e.ID == "" || e.Content == "" {
			return fmt.Errorf("%w: entry %d missing id or content", ErrCorruptSnapshot, i)
		}
		if !knowledge.KnownCategory(e.Category) {
			return fmt.Errorf("%w: entry %d has unknown category %q", ErrCorruptSnapshot, i, e.Category)
		}
	}
	return nil
}
