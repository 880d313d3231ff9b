// Package orchestrator supervises engine processes purely through the
// filesystem: a JSON process registry plus the per-strategy status and
// ledger files each engine owns.
package orchestrator

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"quantbot-go/internal/journal"
)

// Orchestrator discovers strategy directories under root and manages one
// isolated engine process per strategy. It never shares memory with the
// engines it launches.
type Orchestrator struct {
	root      string
	registry  registry
	engineCmd []string
	out       io.Writer
}

// New builds an orchestrator. engineCmd is the command prefix used to spawn
// an engine; the strategy directory is appended as the final argument.
func New(root, registryPath string, engineCmd []string, out io.Writer) *Orchestrator {
	return &Orchestrator{
		root:      root,
		registry:  registry{path: registryPath},
		engineCmd: engineCmd,
		out:       out,
	}
}

// Discover lists the strategy directories available for launch: every
// subdirectory of root that carries a config.yaml. Pure read.
func (o *Orchestrator) Discover() ([]string, error) {
	dirs, err := os.ReadDir(o.root)
	if err != nil {
		return nil, fmt.Errorf("scan strategies: %w", err)
	}
	var names []string
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(o.root, dir.Name(), "config.yaml")); err == nil {
			names = append(names, dir.Name())
		}
	}
	return names, nil
}

// Running returns the registry as currently persisted, without reconciling.
func (o *Orchestrator) Running() map[string]Entry {
	return o.registry.load()
}

// Start spawns an engine process for the named strategy and records it.
// Double starts and unknown names are user errors; nothing is mutated.
func (o *Orchestrator) Start(name string) error {
	available, err := o.Discover()
	if err != nil {
		return err
	}
	if !slices.Contains(available, name) {
		return fmt.Errorf("unknown strategy %q", name)
	}
	procs := o.registry.load()
	if _, running := procs[name]; running {
		return fmt.Errorf("strategy %q is already running", name)
	}

	args := append(slices.Clone(o.engineCmd), filepath.Join(o.root, name))
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn engine: %w", err)
	}
	// Reap the child when it exits so it never lingers as a zombie while
	// the CLI is still up.
	go func() { _ = cmd.Wait() }()

	procs[name] = Entry{PID: cmd.Process.Pid, StartTime: time.Now()}
	if err := o.registry.save(procs); err != nil {
		return err
	}
	fmt.Fprintf(o.out, "started strategy %q (PID %d)\n", name, cmd.Process.Pid)
	return nil
}

// Stop kills the named strategy's process. A terminate failure (process
// already gone) is reported but the registry entry is removed regardless,
// since the intent is satisfied either way.
func (o *Orchestrator) Stop(name string) error {
	procs := o.registry.load()
	entry, ok := procs[name]
	if !ok {
		return fmt.Errorf("strategy %q is not running", name)
	}

	fmt.Fprintf(o.out, "stopping strategy %q (PID %d)...\n", name, entry.PID)
	if err := terminate(entry.PID); err != nil {
		fmt.Fprintf(o.out, "terminate PID %d failed (%v), removing entry anyway\n", entry.PID, err)
	}
	delete(procs, name)
	if err := o.registry.save(procs); err != nil {
		return err
	}
	fmt.Fprintf(o.out, "strategy %q stopped\n", name)
	return nil
}

// Status reports every registered strategy: dead processes are purged from
// the registry (self-healing), live ones echo their status file verbatim.
// Note that this read call writes the registry when it reconciles.
func (o *Orchestrator) Status() error {
	procs := o.registry.load()
	if len(procs) == 0 {
		fmt.Fprintln(o.out, "no strategies running")
		return nil
	}

	names := make([]string, 0, len(procs))
	for name := range procs {
		names = append(names, name)
	}
	sort.Strings(names)

	pruned := false
	for _, name := range names {
		entry := procs[name]
		fmt.Fprintf(o.out, "\nstrategy: %s (PID %d)\n", name, entry.PID)
		if !processAlive(entry.PID) {
			fmt.Fprintln(o.out, "  status: stopped - process not found, likely terminated unexpectedly")
			delete(procs, name)
			pruned = true
			continue
		}
		data, err := os.ReadFile(filepath.Join(o.root, name, journal.StatusFileName))
		if err != nil {
			fmt.Fprintln(o.out, "  status: initializing, no status reported yet")
			continue
		}
		fmt.Fprintf(o.out, "  status: %s\n", strings.TrimSpace(string(data)))
	}

	if pruned {
		if err := o.registry.save(procs); err != nil {
			return err
		}
		fmt.Fprintln(o.out, "\nremoved stale registry entries")
	}
	return nil
}

// History prints the named strategy's trade ledger with realized PnL
// totals. A strategy that has never traded yields an empty report.
func (o *Orchestrator) History(name string) error {
	available, err := o.Discover()
	if err != nil {
		return err
	}
	if !slices.Contains(available, name) {
		return fmt.Errorf("unknown strategy %q", name)
	}

	summary, err := journal.Summarize(filepath.Join(o.root, name, journal.LedgerFileName))
	if err != nil {
		return err
	}
	if summary.Trades == 0 {
		fmt.Fprintf(o.out, "no trades recorded for %q\n", name)
		return nil
	}

	fmt.Fprintf(o.out, "\n--- trade history: %s ---\n", name)
	fmt.Fprintf(o.out, "%-20s %-6s %10s  %s\n", "timestamp", "side", "pnl", "notes")
	fmt.Fprintln(o.out, strings.Repeat("-", 50))
	for _, row := range summary.Rows {
		fmt.Fprintf(o.out, "%-20s %-6s %10s  %s\n", row.Timestamp, row.Side, row.PnL.StringFixed(4), row.Notes)
	}
	fmt.Fprintln(o.out, strings.Repeat("-", 50))
	fmt.Fprintf(o.out, "trades: %d\n", summary.Trades)
	fmt.Fprintf(o.out, "total pnl: %s\n", summary.TotalPnL.StringFixed(4))
	return nil
}
