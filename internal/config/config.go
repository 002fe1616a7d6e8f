// Package config provides configuration loading for recalld.
package config

import (
	"fmt"
	"time"
)

// Config is the full recalld configuration.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Vectorizer   VectorizerConfig   `koanf:"vectorizer"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	Memory       MemoryConfig       `koanf:"memory"`
	Search       SearchConfig       `koanf:"search"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Backup       BackupConfig       `koanf:"backup"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects the persistence substrate.
type StorageConfig struct {
	// Substrate is one of memory, filesystem, sqlite.
	Substrate string `koanf:"substrate"`

	// Path is the data directory (filesystem) or database file (sqlite).
	Path string `koanf:"path"`
}

// VectorizerConfig controls text embedding.
type VectorizerConfig struct {
	Dimension int `koanf:"dimension"`
}

// KnowledgeConfig controls the knowledge store's retention cleanup.
type KnowledgeConfig struct {
	CleanupInterval      time.Duration `koanf:"cleanup_interval"`
	CleanupMaxAge        time.Duration `koanf:"cleanup_max_age"`
	CleanupMinConfidence float64       `koanf:"cleanup_min_confidence"`
}

// MemoryConfig bounds the conversation cache.
type MemoryConfig struct {
	MaxEntries       int           `koanf:"max_entries"`
	RetentionWindow  time.Duration `koanf:"retention_window"`
	OptimizeInterval time.Duration `koanf:"optimize_interval"`
}

// SearchConfig controls the external search adapter.
type SearchConfig struct {
	Enabled         bool          `koanf:"enabled"`
	ProviderTimeout time.Duration `koanf:"provider_timeout"`
	RatePerMinute   int           `koanf:"rate_per_minute"`
	MaxResults      int           `koanf:"max_results"`
}

// OrchestratorConfig tunes the answer pipeline thresholds.
type OrchestratorConfig struct {
	LocalAnswerThreshold float64 `koanf:"local_answer_threshold"`
	MinLocalConfidence   float64 `koanf:"min_local_confidence"`
	WebUsableRelevance   float64 `koanf:"web_usable_relevance"`
	WebLearnRelevance    float64 `koanf:"web_learn_relevance"`
	WebLearnCap          int     `koanf:"web_learn_cap"`
	MaxLocalResults      int     `koanf:"max_local_results"`
}

// BackupConfig controls scheduled snapshots.
type BackupConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Interval   time.Duration `koanf:"interval"`
	Keep       int           `koanf:"keep"`
	StaleAfter time.Duration `koanf:"stale_after"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8087"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Storage.Substrate == "" {
		cfg.Storage.Substrate = "filesystem"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "~/.local/share/recalld"
	}

	if cfg.Vectorizer.Dimension == 0 {
		cfg.Vectorizer.Dimension = 256
	}

	if cfg.Knowledge.CleanupInterval == 0 {
		cfg.Knowledge.CleanupInterval = 24 * time.Hour
	}
	if cfg.Knowledge.CleanupMaxAge == 0 {
		cfg.Knowledge.CleanupMaxAge = 90 * 24 * time.Hour
	}
	if cfg.Knowledge.CleanupMinConfidence == 0 {
		cfg.Knowledge.CleanupMinConfidence = 0.3
	}

	if cfg.Memory.MaxEntries == 0 {
		cfg.Memory.MaxEntries = 500
	}
	if cfg.Memory.RetentionWindow == 0 {
		cfg.Memory.RetentionWindow = 7 * 24 * time.Hour
	}
	if cfg.Memory.OptimizeInterval == 0 {
		cfg.Memory.OptimizeInterval = time.Hour
	}

	if cfg.Search.ProviderTimeout == 0 {
		cfg.Search.ProviderTimeout = 10 * time.Second
	}
	if cfg.Search.RatePerMinute == 0 {
		cfg.Search.RatePerMinute = 30
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 5
	}

	if cfg.Orchestrator.LocalAnswerThreshold == 0 {
		cfg.Orchestrator.LocalAnswerThreshold = 0.5
	}
	if cfg.Orchestrator.MinLocalConfidence == 0 {
		cfg.Orchestrator.MinLocalConfidence = 0.4
	}
	if cfg.Orchestrator.WebUsableRelevance == 0 {
		cfg.Orchestrator.WebUsableRelevance = 0.3
	}
	if cfg.Orchestrator.WebLearnRelevance == 0 {
		cfg.Orchestrator.WebLearnRelevance = 0.5
	}
	if cfg.Orchestrator.WebLearnCap == 0 {
		cfg.Orchestrator.WebLearnCap = 3
	}
	if cfg.Orchestrator.MaxLocalResults == 0 {
		cfg.Orchestrator.MaxLocalResults = 5
	}

	if cfg.Backup.Interval == 0 {
		cfg.Backup.Interval = 6 * time.Hour
	}
	if cfg.Backup.Keep == 0 {
		cfg.Backup.Keep = 48
	}
	if cfg.Backup.StaleAfter == 0 {
		cfg.Backup.StaleAfter = 24 * time.Hour
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "recalld"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	switch c.Storage.Substrate {
	case "memory", "filesystem", "sqlite":
	default:
		return fmt.Errorf("storage.substrate must be memory, filesystem or sqlite, got %q", c.Storage.Substrate)
	}
	if c.Storage.Substrate != "memory" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for substrate %q", c.Storage.Substrate)
	}

	if c.Vectorizer.Dimension < 16 {
		return fmt.Errorf("vectorizer.dimension must be at least 16, got %d", c.Vectorizer.Dimension)
	}
	if c.Memory.MaxEntries < 1 {
		return fmt.Errorf("memory.max_entries must be positive, got %d", c.Memory.MaxEntries)
	}
	if c.Knowledge.CleanupMinConfidence < 0 || c.Knowledge.CleanupMinConfidence > 1 {
		return fmt.Errorf("knowledge.cleanup_min_confidence must be in [0, 1], got %f", c.Knowledge.CleanupMinConfidence)
	}
	if c.Orchestrator.LocalAnswerThreshold < 0 || c.Orchestrator.LocalAnswerThreshold > 1 {
		return fmt.Errorf("orchestrator.local_answer_threshold must be in [0, 1], got %f", c.Orchestrator.LocalAnswerThreshold)
	}
	if c.Backup.Keep < 1 {
		return fmt.Errorf("backup.keep must be positive, got %d", c.Backup.Keep)
	}
	return nil
}
