// Package history persists finished combat sessions under ./logs/ and
// serves them back to the history API. Each session occupies one
// directory named by its start epoch in milliseconds:
//
//	logs/<startMs>/allUserData.json   per-user summaries
//	logs/<startMs>/users/<uid>.json   per-user skill breakdowns
//	logs/<startMs>/summary.json       session metadata
//	logs/<startMs>/fight.log          decoder log lines, append-only
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
)

// Writer flushes session snapshots to disk. One mutex serialises
// writes so an autosave and a session clear never interleave inside a
// directory.
type Writer struct {
	mu   sync.Mutex
	root string
	log  log.Logger
}

func NewWriter(root string, logger log.Logger) *Writer {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Writer{root: root, log: logger}
}

// WriteSnapshot writes the full session directory. A later snapshot of
// the same session overwrites the previous one; fight.log is left
// untouched.
func (w *Writer) WriteSnapshot(snap meter.SessionSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.root, strconv.FormatInt(snap.StartTime, 10))
	if err := os.MkdirAll(filepath.Join(dir, "users"), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "allUserData.json"), snap.Users); err != nil {
		return err
	}
	for uid, detail := range snap.Details {
		if err := writeJSON(filepath.Join(dir, "users", uid+".json"), detail); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(dir, "summary.json"), snap.Summary); err != nil {
		return err
	}

	w.log.Debugf("history snapshot %d written (%d users)", snap.StartTime, len(snap.Users))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
