// Package simulation replays a memory trace through a cache and accounts for
// the cycles it costs.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/report"
)

// SummaryTableName is the table that holds one row per finished run.
const SummaryTableName = "run_summary"

// ErrAlreadyRun is returned when Run is called a second time. The cache
// state and statistics belong to a single replay.
var ErrAlreadyRun = errors.New("simulation has already run")

type summaryEntry struct {
	RunID           string
	Trace           string
	Associativity   int
	LineSize        int
	CacheSizeKB     int
	MissPenalty     int
	DirtyWBPenalty  int
	MemoryAccesses  uint64
	Loads           uint64
	Stores          uint64
	SkippedRecords  uint64
	Instructions    uint64
	Cycles          uint64
	Hits            uint64
	Misses          uint64
	DirtyWriteBacks uint64
	MissRate        float64
	CPI             float64
}

// A Simulation owns one cache engine and replays one trace through it.
type Simulation struct {
	id     string
	cfg    config.Config
	engine *cache.Engine
	logger *logrus.Logger

	recorder     datarecording.DataRecorder
	execRecorder *datarecording.ExecRecorder
	tracer       *trace.DBTracer

	monitor      *monitoring.Monitor
	traceName    string
	traceSize    uint64
	publishEvery uint64

	started bool
	summary report.Summary
}

// ID returns the run ID.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the parameters of the run.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Engine returns the cache being simulated.
func (s *Simulation) Engine() *cache.Engine {
	return s.engine
}

// Run replays every record of the trace. Records with an unknown operation
// are logged and skipped. Malformed records, engine failures, and a
// cancelled context end the run with an error; the returned summary then
// covers the records replayed so far.
func (s *Simulation) Run(ctx context.Context, r io.Reader) (report.Summary, error) {
	if s.started {
		return report.Summary{}, ErrAlreadyRun
	}

	s.started = true
	s.summary = report.Summary{RunID: s.id, Config: s.cfg}

	log := s.logger.WithFields(logrus.Fields{
		"run_id": s.id,
		"trace":  s.traceName,
	})
	log.WithField("geometry", s.engine.Geometry().String()).
		Info("simulation started")

	if s.execRecorder != nil {
		s.execRecorder.Start()
		s.execRecorder.Add("Run ID", s.id)
		s.execRecorder.Add("Trace", s.traceName)
	}

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Trace "+s.traceName, s.traceSize)
		r = &countingReader{r: r, bar: bar}
	}

	err := s.replay(ctx, trace.NewReader(r), log)

	s.finish()

	if bar != nil {
		s.monitor.CompleteProgressBar(bar)
	}

	if err != nil {
		log.WithError(err).Error("simulation stopped")
		return s.summary, err
	}

	log.WithFields(logrus.Fields{
		"accesses":  s.summary.MemoryAccesses,
		"miss_rate": s.summary.MissRate(),
		"cpi":       s.summary.CPI(),
	}).Info("simulation finished")

	return s.summary, nil
}

func (s *Simulation) replay(
	ctx context.Context,
	reader *trace.Reader,
	log *logrus.Entry,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay interrupted at line %d: %w",
				reader.Line(), err)
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if errors.Is(err, trace.ErrUnknownOp) {
			s.summary.SkippedRecords++
			log.WithError(err).Warn("skipping trace line")

			continue
		}

		if err != nil {
			return err
		}

		err = s.process(rec)
		if err != nil {
			return fmt.Errorf("trace line %d: %w", reader.Line(), err)
		}

		if s.monitor != nil && s.summary.MemoryAccesses%s.publishEvery == 0 {
			s.publish(false)
		}
	}
}

func (s *Simulation) process(rec trace.Record) error {
	switch rec.Kind {
	case cache.Load:
		s.summary.Loads++
	case cache.Store:
		s.summary.Stores++
	}

	outcome, err := s.engine.Access(rec.Kind, rec.Address)
	if err != nil {
		return err
	}

	if outcome == cache.Miss {
		s.summary.Cycles += uint64(s.cfg.MissPenalty)
	}

	s.summary.Instructions += rec.Instructions
	s.summary.Cycles += rec.Instructions
	s.summary.MemoryAccesses++

	return nil
}

func (s *Simulation) finish() {
	stats := s.engine.Stats()

	s.summary.Hits = stats.Hits
	s.summary.Misses = stats.Misses
	s.summary.DirtyWriteBacks = stats.DirtyWriteBacks
	s.summary.Cycles += stats.DirtyWriteBacks * uint64(s.cfg.DirtyWBPenalty)

	if s.monitor != nil {
		s.publish(true)
	}

	if s.recorder != nil {
		s.recordSummary()
	}
}

func (s *Simulation) publish(done bool) {
	s.monitor.UpdateSnapshot(monitoring.Snapshot{
		Records:      s.summary.MemoryAccesses,
		Loads:        s.summary.Loads,
		Stores:       s.summary.Stores,
		Skipped:      s.summary.SkippedRecords,
		Instructions: s.summary.Instructions,
		Cycles:       s.summary.Cycles,
		Cache:        s.engine.Stats(),
		Done:         done,
	})
}

func (s *Simulation) recordSummary() {
	sum := s.summary

	s.recorder.InsertData(SummaryTableName, summaryEntry{
		RunID:           s.id,
		Trace:           s.traceName,
		Associativity:   s.cfg.Associativity,
		LineSize:        s.cfg.LineByteSize,
		CacheSizeKB:     s.cfg.CacheSizeKB,
		MissPenalty:     s.cfg.MissPenalty,
		DirtyWBPenalty:  s.cfg.DirtyWBPenalty,
		MemoryAccesses:  sum.MemoryAccesses,
		Loads:           sum.Loads,
		Stores:          sum.Stores,
		SkippedRecords:  sum.SkippedRecords,
		Instructions:    sum.Instructions,
		Cycles:          sum.Cycles,
		Hits:            sum.Hits,
		Misses:          sum.Misses,
		DirtyWriteBacks: sum.DirtyWriteBacks,
		MissRate:        sum.MissRate(),
		CPI:             sum.CPI(),
	})

	if s.tracer != nil {
		s.execRecorder.Add("Traced Accesses",
			strconv.FormatUint(s.tracer.NumRecorded(), 10))
	}

	s.execRecorder.End()
}

type countingReader struct {
	r   io.Reader
	bar *monitoring.ProgressBar
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.bar.IncrementFinished(uint64(n))
	}

	return n, err
}
