// Package watch monitors the notes directory for edits made outside
// this process, so markers moved or removed by another editor are
// relocated (or their timers stopped) promptly instead of at the next
// tick.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher follows one directory of markdown documents.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	log      *slog.Logger
	onChange func(path string)

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over dir. onChange receives the path of every
// markdown file written or created under it.
func New(dir string, onChange func(path string), log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		dir:      dir,
		log:      log,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins delivering change callbacks until Stop.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if !isMarkdown(ev.Name) {
				continue
			}
			w.onChange(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

// Stop ends the watch and waits for the event loop to drain.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
	w.wg.Wait()
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}
