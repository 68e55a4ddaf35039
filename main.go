package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/marktime/internal/clock"
	"github.com/sadopc/marktime/internal/config"
	"github.com/sadopc/marktime/internal/docsync"
	"github.com/sadopc/marktime/internal/engine"
	"github.com/sadopc/marktime/internal/ledger"
	"github.com/sadopc/marktime/internal/tui"
	"github.com/sadopc/marktime/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultCfg, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfgPath := flag.String("config", defaultCfg, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
		return fmt.Errorf("ledger dir: %w", err)
	}
	led := ledger.New(cfg.LedgerPath, cfg.RetentionDays, clock.System{})
	if err := led.Prune(); err != nil {
		log.Warn("ledger prune failed", "err", err)
	}

	eng := engine.New(cfg, clock.System{}, led, log)
	defer eng.Shutdown()

	if err := openNotes(eng, cfg.NotesDir, log); err != nil {
		return err
	}

	w, err := watch.New(cfg.NotesDir, func(path string) {
		if eng.Tracks(path) {
			eng.Relocate(path)
			return
		}
		if err := eng.OpenDocument(docsync.NewFile(path)); err != nil {
			log.Warn("open document failed", "path", path, "err", err)
		}
	}, log)
	if err != nil {
		log.Warn("file watcher unavailable", "err", err)
	} else {
		if err := w.Start(); err != nil {
			log.Warn("file watcher failed to start", "err", err)
		} else {
			defer w.Stop()
		}
	}

	app := tui.NewApp(eng, led)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

// openNotes scans every markdown file under dir and hands it to the
// engine, which restores or force-pauses running markers per the
// reopen policy.
func openNotes(eng *engine.Engine, dir string, log *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("notes directory missing", "dir", dir)
			return nil
		}
		return fmt.Errorf("read notes dir: %w", err)
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(ent.Name()))
		if ext != ".md" && ext != ".markdown" {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		if err := eng.OpenDocument(docsync.NewFile(path)); err != nil {
			log.Warn("open document failed", "path", path, "err", err)
		}
	}
	return nil
}

func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return log, func() { f.Close() }, nil
}
