package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/report"
	"github.com/sarchlab/cachesim/simulation"
)

type runOptions struct {
	configFlags config.Flags

	recordPath    string
	traceAccesses bool
	jsonPath      string
	monitor       bool
	monitorPort   int
	openMonitor   bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run [flags] <trace>",
		Short: "Replay a trace file and print the cache statistics.",
		Long: "Each trace line is `<l|s> <hex address> <instructions>`. " +
			"Lines with another operation are skipped with a warning.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	opts.configFlags.Register(runCmd.Flags())

	runCmd.Flags().StringVar(&opts.recordPath, "record", "",
		"record the run into <path>.sqlite3")
	runCmd.Flags().BoolVar(&opts.traceAccesses, "trace-accesses", false,
		"also record every cache access (requires --record)")
	runCmd.Flags().StringVar(&opts.jsonPath, "json", "",
		"write the summary as JSON to this file")
	runCmd.Flags().BoolVar(&opts.monitor, "monitor", false,
		"serve progress and statistics over HTTP while running")
	runCmd.Flags().IntVar(&opts.monitorPort, "monitor-port", 0,
		"port of the monitoring server (random if below 1000)")
	runCmd.Flags().BoolVar(&opts.openMonitor, "open-monitor", false,
		"open the monitoring page in a browser (implies --monitor)")

	return runCmd
}

func (o *runOptions) run(cmd *cobra.Command, tracePath string) error {
	if o.traceAccesses && o.recordPath == "" {
		return errors.New("--trace-accesses requires --record")
	}

	cfg, err := o.configFlags.Resolve(cmd.Flags())
	if err != nil {
		return err
	}

	f, err := os.Open(tracePath) //nolint:gosec // path is user-supplied
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	var size uint64
	if info, statErr := f.Stat(); statErr == nil {
		size = uint64(info.Size())
	}

	b := simulation.MakeBuilder().
		WithConfig(cfg).
		WithLogger(logger).
		WithTrace(filepath.Base(tracePath), size)

	var recorder datarecording.DataRecorder
	if o.recordPath != "" {
		recorder = datarecording.New(strings.TrimSuffix(o.recordPath, ".sqlite3"))
		defer recorder.Close()

		b = b.WithRecorder(recorder)
		if o.traceAccesses {
			b = b.WithAccessTracing()
		}
	}

	if o.monitor || o.openMonitor {
		m, err := o.startMonitor()
		if err != nil {
			return err
		}
		defer m.StopServer(context.Background())

		b = b.WithMonitor(m)
	}

	s := b.Build()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	report.WriteSettings(out, cfg)

	sum, err := s.Run(ctx, f)
	if err != nil {
		return err
	}

	report.WriteText(out, sum)

	if o.jsonPath != "" {
		err = report.WriteJSONFile(o.jsonPath, sum)
		if err != nil {
			return err
		}

		logger.WithField("path", o.jsonPath).Info("summary written")
	}

	if recorder != nil {
		return recorder.Close()
	}

	return nil
}

func (o *runOptions) startMonitor() (*monitoring.Monitor, error) {
	m := monitoring.NewMonitor()
	if o.monitorPort != 0 {
		m.WithPortNumber(o.monitorPort)
	}

	_, err := m.StartServer()
	if err != nil {
		return nil, err
	}

	if o.openMonitor {
		err = m.OpenInBrowser()
		if err != nil {
			logger.WithError(err).Warn("cannot open browser")
		}
	}

	return m, nil
}
