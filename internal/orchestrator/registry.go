package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RegistryFileName is the default on-disk location of the process registry,
// relative to the working directory of the CLI.
const RegistryFileName = ".running_strategies.json"

// Entry records one spawned engine process. The registry is advisory:
// actual liveness is always re-checked against the OS.
type Entry struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

type registry struct {
	path string
}

// load tolerates a missing or corrupt file, returning an empty map; the
// registry self-heals on the next save.
func (r registry) load() map[string]Entry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return map[string]Entry{}
	}
	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return map[string]Entry{}
	}
	return entries
}

// save rewrites the registry in full, using write-then-rename so a crash
// mid-write never leaves a torn file behind.
func (r registry) save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
