// Package journal persists the per-instance side files the orchestrator
// reads: a live status string and the append-only trade ledger.
package journal

import (
	"fmt"
	"os"
	"time"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// Well-known side file names inside a strategy directory. The engine writes
// them; the orchestrator only reads.
const (
	StatusFileName = "status.log"
	LedgerFileName = "trades.csv"
)

// StatusReporter overwrites a single status file with a short human-readable
// line. The engine is the only writer, so no locking is needed.
type StatusReporter struct {
	path string
	now  func() time.Time
}

// NewStatusReporter targets the given file path.
func NewStatusReporter(path string) *StatusReporter {
	return &StatusReporter{path: path, now: time.Now}
}

// Update replaces the whole file with a timestamped message.
func (s *StatusReporter) Update(message string) error {
	line := fmt.Sprintf("%s: %s", s.now().Format(statusTimeLayout), message)
	if err := os.WriteFile(s.path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
