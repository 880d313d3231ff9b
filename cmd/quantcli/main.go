// Binary quantcli is the interactive control surface: it discovers strategy
// directories, launches and stops engine processes, and aggregates their
// status and trade history from the files each engine owns.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"quantbot-go/internal/orchestrator"
)

const strategiesDir = "strategies"

func main() {
	reader := bufio.NewReader(os.Stdin)
	orch := orchestrator.New(strategiesDir, orchestrator.RegistryFileName, engineCommand(), os.Stdout)

	printBanner()
	printHelp()

	for {
		fmt.Print("\n(quant-cli) >>> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nexiting...")
			return
		}
		command := strings.ToLower(strings.TrimSpace(line))

		switch command {
		case "start":
			startStrategy(reader, orch)
		case "stop":
			stopStrategy(reader, orch)
		case "status":
			if err := orch.Status(); err != nil {
				fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
			}
		case "history":
			showHistory(reader, orch)
		case "help":
			printHelp()
		case "exit":
			fmt.Println("exiting...")
			return
		case "":
		default:
			fmt.Printf("unknown command %q, type 'help' for available commands\n", command)
		}
	}
}

func startStrategy(reader *bufio.Reader, orch *orchestrator.Orchestrator) {
	strategies, err := orch.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover failed: %v\n", err)
		return
	}
	if len(strategies) == 0 {
		fmt.Printf("no strategies found under %s/\n", strategiesDir)
		return
	}

	running := orch.Running()
	fmt.Println("\n--- available strategies ---")
	startable := 0
	for i, name := range strategies {
		if _, ok := running[name]; ok {
			fmt.Printf("  %d. %s (running)\n", i+1, name)
		} else {
			fmt.Printf("  %d. %s\n", i+1, name)
			startable++
		}
	}
	if startable == 0 {
		fmt.Println("\nevery strategy is already running")
		return
	}

	idx, ok := promptChoice(reader, "select strategy to start", len(strategies))
	if !ok {
		return
	}
	if err := orch.Start(strategies[idx]); err != nil {
		fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
	}
}

func stopStrategy(reader *bufio.Reader, orch *orchestrator.Orchestrator) {
	running := orch.Running()
	if len(running) == 0 {
		fmt.Println("no strategies running")
		return
	}

	names := make([]string, 0, len(running))
	for name := range running {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\n--- running strategies ---")
	for i, name := range names {
		fmt.Printf("  %d. %s (PID %d)\n", i+1, name, running[name].PID)
	}

	idx, ok := promptChoice(reader, "select strategy to stop", len(names))
	if !ok {
		return
	}
	if err := orch.Stop(names[idx]); err != nil {
		fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
	}
}

func showHistory(reader *bufio.Reader, orch *orchestrator.Orchestrator) {
	strategies, err := orch.Discover()
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover failed: %v\n", err)
		return
	}
	if len(strategies) == 0 {
		fmt.Printf("no strategies found under %s/\n", strategiesDir)
		return
	}

	fmt.Println("\n--- select strategy for history ---")
	for i, name := range strategies {
		fmt.Printf("  %d. %s\n", i+1, name)
	}

	idx, ok := promptChoice(reader, "select strategy", len(strategies))
	if !ok {
		return
	}
	if err := orch.History(strategies[idx]); err != nil {
		fmt.Fprintf(os.Stderr, "history failed: %v\n", err)
	}
}

// promptChoice reads a 1-based menu selection, reporting ok=false on
// anything out of range.
func promptChoice(reader *bufio.Reader, label string, n int) (int, bool) {
	fmt.Printf("\n%s [1-%d]: ", label, n)
	line, err := reader.ReadString('\n')
	if err != nil {
		return 0, false
	}
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > n {
		fmt.Println("invalid selection")
		return 0, false
	}
	return choice - 1, true
}

// engineCommand resolves how a strategy engine is spawned: an explicit
// override, the engine binary next to this executable, or `go run` when
// working from the repo.
func engineCommand() []string {
	if v := os.Getenv("QUANTBOT_ENGINE"); v != "" {
		return strings.Fields(v)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "engine")
		if _, err := os.Stat(candidate); err == nil {
			return []string{candidate}
		}
	}
	return []string{"go", "run", "./cmd/engine"}
}

func printBanner() {
	fmt.Print(`
   ____                    _    ____ _     ___
  / __ \ _   _  __ _ _ __ | |_ / ___| |   |_ _|
 | |  | | | | |/ _` + "`" + ` | '_ \| __| |   | |    | |
 | |__| | |_| | (_| | | | | |_| |___| |___ | |
  \___\_\\__,_|\__,_|_| |_|\__|\____|_____|___|

                quant-cli - happy trading
`)
}

func printHelp() {
	fmt.Print(`
available commands:
  start     - launch a strategy engine
  stop      - stop a running strategy
  status    - show live status of running strategies
  history   - show a strategy's trade history and PnL
  help      - show this message
  exit      - quit the CLI
`)
}
