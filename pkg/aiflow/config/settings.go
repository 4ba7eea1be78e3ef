package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
	"github.com/randalmurphal/aiflow/pkg/aiflow/snapshot"
	"github.com/randalmurphal/aiflow/pkg/aiflow/value"
)

// Setting keys.
const (
	KeySection               = "aiflow"
	KeyMaxRecursion          = "max_recursion"
	KeyFinalOutputTimeout    = "final_output_timeout"
	KeyFinalizeSettleTimeout = "finalize_settle_timeout"
	KeyDeduplicateChunks     = "deduplicate_chunks"
	KeySnapshotPath          = "snapshot_path"
	KeyLogLevel              = "log_level"
)

// ErrInvalidSettings is wrapped by every Validate failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds the tunables of a build and a run.
type Settings struct {
	MaxRecursion          int
	FinalOutputTimeout    time.Duration
	FinalizeSettleTimeout time.Duration
	DeduplicateChunks     bool
	SnapshotPath          string
	LogLevel              slog.Level
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		MaxRecursion:          aiflow.DefaultMaxRecursion,
		FinalOutputTimeout:    value.DefaultFinalOutputTimeout,
		FinalizeSettleTimeout: value.DefaultSettleTimeout,
		DeduplicateChunks:     true,
		LogLevel:              slog.LevelInfo,
	}
}

// FromConfig reads Settings from cfg, or from its "aiflow" section when
// present. Missing or mistyped keys keep their defaults; an unknown log
// level keeps info.
func FromConfig(cfg Config) Settings {
	if cfg.Has(KeySection) {
		cfg = cfg.Sub(KeySection)
	}
	d := Defaults()
	s := Settings{
		MaxRecursion:          cfg.Int(KeyMaxRecursion, d.MaxRecursion),
		FinalOutputTimeout:    cfg.Duration(KeyFinalOutputTimeout, d.FinalOutputTimeout),
		FinalizeSettleTimeout: cfg.Duration(KeyFinalizeSettleTimeout, d.FinalizeSettleTimeout),
		DeduplicateChunks:     cfg.Bool(KeyDeduplicateChunks, d.DeduplicateChunks),
		SnapshotPath:          cfg.String(KeySnapshotPath, ""),
		LogLevel:              d.LogLevel,
	}
	if lvl := cfg.String(KeyLogLevel, ""); lvl != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(strings.TrimSpace(lvl))); err == nil {
			s.LogLevel = parsed
		}
	}
	return s
}

// Validate reports settings no component can run with.
func (s Settings) Validate() error {
	var errs []error
	if s.MaxRecursion < 1 {
		errs = append(errs, fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidSettings, KeyMaxRecursion, s.MaxRecursion))
	}
	if s.FinalOutputTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s must be positive", ErrInvalidSettings, KeyFinalOutputTimeout))
	}
	if s.FinalizeSettleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s must be positive", ErrInvalidSettings, KeyFinalizeSettleTimeout))
	}
	return errors.Join(errs...)
}

// Logger returns a JSON logger writing to w at the configured level.
func (s Settings) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: s.LogLevel}))
}

// BuilderOptions translates the settings into graph builder options,
// followed by extra.
func (s Settings) BuilderOptions(extra ...aiflow.BuilderOption) []aiflow.BuilderOption {
	opts := []aiflow.BuilderOption{aiflow.WithMaxRecursion(s.MaxRecursion)}
	return append(opts, extra...)
}

// RunOptions translates the settings into run options, followed by extra.
func (s Settings) RunOptions(extra ...value.RunOption) []value.RunOption {
	opts := []value.RunOption{
		value.WithFinalOutputTimeout(s.FinalOutputTimeout),
		value.WithSettleTimeout(s.FinalizeSettleTimeout),
		value.WithDeduplication(s.DeduplicateChunks),
	}
	return append(opts, extra...)
}

// OpenStore opens the snapshot store: SQLite at SnapshotPath, or an
// in-memory store when the path is empty.
func (s Settings) OpenStore() (snapshot.Store, error) {
	if s.SnapshotPath == "" {
		return snapshot.NewMemoryStore(), nil
	}
	store, err := snapshot.NewSQLiteStore(s.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return store, nil
}
