package alerting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ftahirops/xdiag/model"
)

// Journal appends alert events to a JSONL file. It is an export; nothing
// reads it back.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal creates the parent directory of path and returns a journal.
func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{path: path}, nil
}

// Path returns the journal file.
func (j *Journal) Path() string { return j.path }

// Write appends one event.
func (j *Journal) Write(ev model.AlertEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ev)
}
