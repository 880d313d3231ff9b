package orchestrator

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantbot-go/internal/journal"
)

// sleeperCmd spawns a process that idles; the appended strategy dir lands in
// $0 and is ignored.
var sleeperCmd = []string{"sh", "-c", "sleep 60"}

func newTestOrchestrator(t *testing.T, strategies ...string) (*Orchestrator, string, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	for _, name := range strategies {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir strategy: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("strategy:\n  symbol: BTCUSDT\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	out := &bytes.Buffer{}
	o := New(root, filepath.Join(root, RegistryFileName), sleeperCmd, out)
	return o, root, out
}

func stopAll(t *testing.T, o *Orchestrator) {
	t.Helper()
	for name := range o.Running() {
		_ = o.Stop(name)
	}
}

func TestDiscoverListsStrategyDirs(t *testing.T) {
	o, root, _ := newTestOrchestrator(t, "alpha", "beta")
	// A directory without config.yaml is not a strategy.
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := o.Discover()
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("unexpected strategies: %v", names)
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "alpha")
	defer stopAll(t, o)

	if err := o.Start("alpha"); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	if err := o.Start("alpha"); err == nil {
		t.Fatalf("expected double-start error")
	}

	procs := o.Running()
	if len(procs) != 1 {
		t.Fatalf("expected exactly one registry entry, got %d", len(procs))
	}
	if procs["alpha"].PID <= 0 {
		t.Fatalf("expected recorded pid, got %d", procs["alpha"].PID)
	}
}

func TestStartUnknownStrategy(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "alpha")
	if err := o.Start("ghost"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if len(o.Running()) != 0 {
		t.Fatalf("registry must stay empty after rejected start")
	}
}

func TestStopRemovesEntry(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "alpha")
	if err := o.Start("alpha"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	pid := o.Running()["alpha"].PID

	if err := o.Stop("alpha"); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if len(o.Running()) != 0 {
		t.Fatalf("expected empty registry after stop")
	}
	// Give the reaper a moment, then the pid must be gone.
	time.Sleep(100 * time.Millisecond)
	if processAlive(pid) {
		t.Fatalf("expected pid %d to be dead", pid)
	}
}

func TestStopAbsentStrategy(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "alpha")
	if err := o.Stop("alpha"); err == nil {
		t.Fatalf("expected error stopping a strategy that is not running")
	}
}

func TestStopRemovesEntryWhenProcessAlreadyGone(t *testing.T) {
	o, _, out := newTestOrchestrator(t, "alpha")
	reg := registry{path: o.registry.path}
	if err := reg.save(map[string]Entry{"alpha": {PID: 999999999, StartTime: time.Now()}}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	if err := o.Stop("alpha"); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if len(o.Running()) != 0 {
		t.Fatalf("expected entry removed even though terminate failed")
	}
	if !strings.Contains(out.String(), "removing entry anyway") {
		t.Fatalf("expected terminate failure to be reported, got %q", out.String())
	}
}

func TestStatusPurgesDeadEntries(t *testing.T) {
	o, _, out := newTestOrchestrator(t, "alpha")
	reg := registry{path: o.registry.path}
	if err := reg.save(map[string]Entry{"alpha": {PID: 999999999, StartTime: time.Now()}}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	if err := o.Status(); err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !strings.Contains(out.String(), "stopped - process not found") {
		t.Fatalf("expected dead entry reported as stopped, got %q", out.String())
	}
	if len(o.Running()) != 0 {
		t.Fatalf("expected dead entry purged from registry")
	}
}

func TestStatusEchoesStatusFile(t *testing.T) {
	o, root, out := newTestOrchestrator(t, "alpha")
	defer stopAll(t, o)

	if err := o.Start("alpha"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	statusLine := "2024-05-01 12:00:00: holding long position"
	if err := os.WriteFile(filepath.Join(root, "alpha", journal.StatusFileName), []byte(statusLine), 0o644); err != nil {
		t.Fatalf("write status: %v", err)
	}

	if err := o.Status(); err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !strings.Contains(out.String(), statusLine) {
		t.Fatalf("expected status file echoed verbatim, got %q", out.String())
	}
}

func TestHistoryAggregates(t *testing.T) {
	o, root, out := newTestOrchestrator(t, "alpha")
	ledger := journal.NewTradeLedger(filepath.Join(root, "alpha", journal.LedgerFileName))
	rows := []journal.TradeRecord{
		{Time: time.Now(), Symbol: "BTCUSDT", Side: "long", Amount: "1", PnL: "5.0", Fee: "-0.1", Notes: "TP"},
		{Time: time.Now(), Symbol: "BTCUSDT", Side: "short", Amount: "1", PnL: "-2.0", Fee: "-0.1", Notes: "SL"},
	}
	for _, row := range rows {
		if err := ledger.Append(row); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	if err := o.History("alpha"); err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	report := out.String()
	if !strings.Contains(report, "trades: 2") {
		t.Fatalf("expected trade count 2, got %q", report)
	}
	if !strings.Contains(report, "total pnl: 3.0000") {
		t.Fatalf("expected total pnl 3.0000, got %q", report)
	}
}

func TestHistoryMissingLedger(t *testing.T) {
	o, _, out := newTestOrchestrator(t, "alpha")
	if err := o.History("alpha"); err != nil {
		t.Fatalf("missing ledger must not be an error, got %v", err)
	}
	if !strings.Contains(out.String(), "no trades recorded") {
		t.Fatalf("expected empty report, got %q", out.String())
	}
}

func TestRegistryRoundTripAndCorruptFile(t *testing.T) {
	dir := t.TempDir()
	reg := registry{path: filepath.Join(dir, RegistryFileName)}

	entries := map[string]Entry{"alpha": {PID: 1234, StartTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}}
	if err := reg.save(entries); err != nil {
		t.Fatalf("save returned error: %v", err)
	}
	loaded := reg.load()
	if loaded["alpha"].PID != 1234 {
		t.Fatalf("unexpected loaded entry: %+v", loaded)
	}

	if err := os.WriteFile(reg.path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt registry: %v", err)
	}
	if got := reg.load(); len(got) != 0 {
		t.Fatalf("expected corrupt registry treated as empty, got %+v", got)
	}
}
