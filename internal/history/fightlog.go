package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const fightLogTimeLayout = "2006-01-02 15:04:05.000"

// FightLog appends decoder log lines to the running session's
// fight.log. It holds its own mutex, separate from the statistics
// engine, so log lines keep accumulating even while capture or the
// engine is busy.
type FightLog struct {
	mu   sync.Mutex
	root string
}

func NewFightLog(root string) *FightLog {
	return &FightLog{root: root}
}

// Append writes one timestamped line to logs/<startMs>/fight.log,
// creating the session directory on first use.
func (l *FightLog) Append(startMs int64, at time.Time, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.root, strconv.FormatInt(startMs, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "fight.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fight log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", at.Format(fightLogTimeLayout), line); err != nil {
		return fmt.Errorf("failed to append fight log: %w", err)
	}
	return nil
}
