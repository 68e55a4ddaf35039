// Package config loads the TOML configuration. Every tuning constant
// of the accrual engine lives here rather than in business logic.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sadopc/marktime/internal/docsync"
	"github.com/sadopc/marktime/internal/timer"
)

// Insertion policies for brand-new markers.
const (
	InsertLineStart = "line-start"
	InsertLineEnd   = "line-end"
	InsertCursor    = "cursor"
)

// Reopen policies for running markers found when the process boots.
const (
	ReopenRestore    = "restore"
	ReopenForcePause = "forcepause"
)

type Config struct {
	// NotesDir is the directory of markdown documents to track.
	NotesDir string `toml:"notes_dir"`

	// LedgerPath is the analytics ledger file.
	LedgerPath string `toml:"ledger_path"`

	TickPeriodSeconds int `toml:"tick_period_seconds"`
	SleepGapSeconds   int `toml:"sleep_gap_seconds"`
	MaxStepSeconds    int `toml:"max_step_seconds"`
	RetentionDays     int `toml:"retention_days"`

	Insertion string `toml:"insertion"`
	Reopen    string `toml:"reopen"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfgDir, _ := os.UserConfigDir()
	home, _ := os.UserHomeDir()
	return Config{
		NotesDir:          filepath.Join(home, "notes"),
		LedgerPath:        filepath.Join(cfgDir, "marktime", "ledger.json"),
		TickPeriodSeconds: 1,
		SleepGapSeconds:   60,
		MaxStepSeconds:    5,
		RetentionDays:     90,
		Insertion:         InsertLineStart,
		Reopen:            ReopenRestore,
		LogLevel:          "info",
		LogFile:           filepath.Join(cfgDir, "marktime", "marktime.log"),
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "marktime", "config.toml"), nil
}

// Load reads path over the defaults. A missing file is not an error:
// the defaults apply as-is. MARKTIME_NOTES_DIR overrides the notes
// directory either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if dir := os.Getenv("MARKTIME_NOTES_DIR"); dir != "" {
		cfg.NotesDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the relationships the accrual design depends on.
func (c Config) Validate() error {
	if c.NotesDir == "" {
		return fmt.Errorf("config: notes_dir is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("config: ledger_path is required")
	}
	if c.TickPeriodSeconds < 1 {
		return fmt.Errorf("config: tick_period_seconds must be >= 1")
	}
	if c.MaxStepSeconds < c.TickPeriodSeconds {
		return fmt.Errorf("config: max_step_seconds must be >= tick_period_seconds")
	}
	if c.SleepGapSeconds <= 2*c.TickPeriodSeconds {
		return fmt.Errorf("config: sleep_gap_seconds must exceed the tick period by a wide margin")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("config: retention_days must be >= 1")
	}
	switch c.Insertion {
	case InsertLineStart, InsertLineEnd, InsertCursor:
	default:
		return fmt.Errorf("config: unknown insertion policy %q", c.Insertion)
	}
	switch c.Reopen {
	case ReopenRestore, ReopenForcePause:
	default:
		return fmt.Errorf("config: unknown reopen policy %q", c.Reopen)
	}
	return nil
}

// TickPeriod returns the scheduler period.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodSeconds) * time.Second
}

// Limits returns the accrual bounds.
func (c Config) Limits() timer.Limits {
	return timer.Limits{
		SleepGapSeconds: int64(c.SleepGapSeconds),
		MaxStepSeconds:  int64(c.MaxStepSeconds),
	}
}

// InsertPosition maps the insertion policy name onto the syncer's enum.
func (c Config) InsertPosition() docsync.InsertPosition {
	switch c.Insertion {
	case InsertLineEnd:
		return docsync.InsertLineEnd
	case InsertCursor:
		return docsync.InsertCursor
	default:
		return docsync.InsertLineStart
	}
}
