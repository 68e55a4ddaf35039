package docsync

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Document is the access surface the syncer needs from a text document.
// Two implementations exist: a live line-addressable buffer (an open
// editor view) and a persisted file rewritten atomically as a whole.
type Document interface {
	// Path identifies the document; used as the location cache key.
	Path() string

	// Text returns the full document content.
	Text() (string, error)

	// Line returns line i (zero-based, no trailing newline).
	Line(i int) (string, error)

	// ReplaceRange replaces [start, end) of line i with text, leaving
	// the rest of the line untouched.
	ReplaceRange(i, start, end int, text string) error

	// Update applies fn to the full content in one atomic
	// read-modify-write cycle, so concurrent unrelated writers to the
	// same file are not clobbered between our read and our write.
	Update(fn func(string) (string, error)) error
}

var errLineRange = errors.New("docsync: line index out of range")

// BufferDocument is an in-memory, line-addressable document standing in
// for a live editor buffer.
type BufferDocument struct {
	mu    sync.Mutex
	path  string
	lines []string
}

func NewBuffer(path, content string) *BufferDocument {
	return &BufferDocument{path: path, lines: strings.Split(content, "\n")}
}

func (b *BufferDocument) Path() string { return b.path }

func (b *BufferDocument) Text() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n"), nil
}

func (b *BufferDocument) Line(i int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.lines) {
		return "", errLineRange
	}
	return b.lines[i], nil
}

func (b *BufferDocument) ReplaceRange(i, start, end int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.lines) {
		return errLineRange
	}
	line := b.lines[i]
	if start < 0 || end < start || end > len(line) {
		return fmt.Errorf("docsync: span [%d,%d) out of range on line %d", start, end, i)
	}
	b.lines[i] = line[:start] + text + line[end:]
	return nil
}

func (b *BufferDocument) Update(fn func(string) (string, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := fn(strings.Join(b.lines, "\n"))
	if err != nil {
		return err
	}
	b.lines = strings.Split(next, "\n")
	return nil
}

// FileDocument is a persisted document. Every mutation goes through a
// whole-file read-modify-write finished by an atomic rename; that cycle
// substitutes for a lock, since multi-process writers are out of scope.
type FileDocument struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *FileDocument {
	return &FileDocument{path: path}
}

func (f *FileDocument) Path() string { return f.path }

func (f *FileDocument) Text() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

func (f *FileDocument) Line(i int) (string, error) {
	text, err := f.Text()
	if err != nil {
		return "", err
	}
	lines := strings.Split(text, "\n")
	if i < 0 || i >= len(lines) {
		return "", errLineRange
	}
	return lines[i], nil
}

func (f *FileDocument) ReplaceRange(i, start, end int, text string) error {
	return f.Update(func(content string) (string, error) {
		lines := strings.Split(content, "\n")
		if i < 0 || i >= len(lines) {
			return "", errLineRange
		}
		line := lines[i]
		if start < 0 || end < start || end > len(line) {
			return "", fmt.Errorf("docsync: span [%d,%d) out of range on line %d", start, end, i)
		}
		lines[i] = line[:start] + text + line[end:]
		return strings.Join(lines, "\n"), nil
	})
}

func (f *FileDocument) Update(fn func(string) (string, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	next, err := fn(string(data))
	if err != nil {
		return err
	}
	if next == string(data) {
		return nil
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(next), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}
