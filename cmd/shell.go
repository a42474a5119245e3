package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/report"
)

var shellCommands = []string{
	"l", "s", "stats", "set", "geometry", "help", "quit",
}

func newShellCmd() *cobra.Command {
	var configFlags config.Flags

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Issue loads and stores to a cache interactively.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFlags.Resolve(cmd.Flags())
			if err != nil {
				return err
			}

			sh := newShell(cfg, cmd.OutOrStdout())

			return sh.loop()
		},
	}

	configFlags.Register(shellCmd.Flags())

	return shellCmd
}

// shell drives one engine from typed commands.
type shell struct {
	engine *cache.Engine
	out    io.Writer
}

func newShell(cfg config.Config, out io.Writer) *shell {
	return &shell{
		engine: cache.NewEngine(
			cfg.Associativity,
			cfg.CacheByteSize(),
			uint64(cfg.LineByteSize),
		),
		out: out,
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cachesim_history")
}

func (sh *shell) loop() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(sh.out, "cachesim shell (%s)\n", sh.engine.Geometry())
	fmt.Fprintln(sh.out, "Type 'help' for available commands.")

	defer sh.saveHistory(line)

	for {
		input, err := line.Prompt("cache> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(sh.out)
			return nil
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if sh.execute(input) {
			return nil
		}
	}
}

func (sh *shell) saveHistory(line *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path) //nolint:gosec // fixed name under $HOME
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = line.WriteHistory(f)
}

func completeCommand(input string) []string {
	var out []string

	for _, c := range shellCommands {
		if strings.HasPrefix(c, strings.ToLower(input)) {
			out = append(out, c)
		}
	}

	return out
}

// execute runs one command line and reports whether the shell should quit.
func (sh *shell) execute(input string) bool {
	parts := strings.Fields(input)
	args := parts[1:]

	switch strings.ToLower(parts[0]) {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		sh.printHelp()
	case "l", "load":
		sh.access(cache.Load, args)
	case "s", "store":
		sh.access(cache.Store, args)
	case "stats":
		sh.printStats()
	case "set":
		sh.printSet(args)
	case "geometry":
		sh.printGeometry()
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n",
			parts[0])
	}

	return false
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, `Commands:
  l <hex address>   load
  s <hex address>   store
  stats             hit, miss, and write-back counters
  set <index>       lines of one set in way order
  geometry          cache shape and address split
  help              this message
  quit              leave the shell`)
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	return strconv.ParseUint(s, 16, 64)
}

func (sh *shell) access(kind cache.AccessKind, args []string) {
	if len(args) != 1 {
		fmt.Fprintf(sh.out, "usage: %s <hex address>\n", kind)
		return
	}

	addr, err := parseHex(args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "invalid address %q\n", args[0])
		return
	}

	wbBefore := sh.engine.DirtyWriteBacks()

	outcome, err := sh.engine.Access(kind, addr)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}

	setID, tag := sh.engine.Geometry().Decode(addr)

	fmt.Fprintf(sh.out, "%s 0x%x: %s (set %d, tag 0x%x)", kind, addr,
		outcome, setID, tag)

	if sh.engine.DirtyWriteBacks() > wbBefore {
		fmt.Fprint(sh.out, ", dirty line written back")
	}

	fmt.Fprintln(sh.out)
}

func (sh *shell) printStats() {
	stats := sh.engine.Stats()

	sum := report.Summary{
		MemoryAccesses:  stats.Accesses(),
		Hits:            stats.Hits,
		Misses:          stats.Misses,
		DirtyWriteBacks: stats.DirtyWriteBacks,
	}

	fmt.Fprintf(sh.out, "accesses %d, hits %d, misses %d, "+
		"dirty write-backs %d, miss rate %.5f%%\n",
		sum.MemoryAccesses, sum.Hits, sum.Misses, sum.DirtyWriteBacks,
		sum.MissRate()*100)
}

func (sh *shell) printSet(args []string) {
	g := sh.engine.Geometry()

	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: set <index>")
		return
	}

	setID, err := strconv.Atoi(args[0])
	if err != nil || setID < 0 || setID >= g.NumSets {
		fmt.Fprintf(sh.out, "set index must be in [0, %d)\n", g.NumSets)
		return
	}

	for way, l := range sh.engine.Lines(setID) {
		if !l.Valid {
			fmt.Fprintf(sh.out, "  way %d: invalid\n", way)
			continue
		}

		state := "clean"
		if l.Dirty {
			state = "dirty"
		}

		fmt.Fprintf(sh.out, "  way %d: tag 0x%x %s rank %d\n",
			way, l.Tag, state, l.RecencyRank)
	}
}

func (sh *shell) printGeometry() {
	g := sh.engine.Geometry()

	fmt.Fprintf(sh.out, "%s\n", g)
	fmt.Fprintf(sh.out, "offset bits %d, index bits %d, tag bits %d\n",
		g.Log2LineSize, g.Log2NumSets, g.TagBits())
}
