package simulation

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/sim"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg           config.Config
	logger        *logrus.Logger
	recorder      datarecording.DataRecorder
	traceAccesses bool
	monitor       *monitoring.Monitor
	runID         string
	traceName     string
	traceSize     uint64
	publishEvery  uint64
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		cfg:          config.Default(),
		logger:       logrus.StandardLogger(),
		publishEvery: 4096,
	}
}

// WithConfig sets the cache and timing parameters.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger that reports the progress of the run.
func (b Builder) WithLogger(logger *logrus.Logger) Builder {
	b.logger = logger
	return b
}

// WithRecorder makes the simulation write its execution information and
// summary into the given data recorder.
func (b Builder) WithRecorder(recorder datarecording.DataRecorder) Builder {
	b.recorder = recorder
	return b
}

// WithAccessTracing also records every cache access. It requires a recorder.
func (b Builder) WithAccessTracing() Builder {
	b.traceAccesses = true
	return b
}

// WithMonitor publishes progress and statistics to a monitor.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithRunID overrides the generated run ID.
func (b Builder) WithRunID(id string) Builder {
	b.runID = id
	return b
}

// WithTrace names the trace and gives its size in bytes for progress
// reporting. A size of 0 means unknown.
func (b Builder) WithTrace(name string, byteSize uint64) Builder {
	b.traceName = name
	b.traceSize = byteSize
	return b
}

// WithPublishInterval sets how many records are replayed between two
// snapshots sent to the monitor.
func (b Builder) WithPublishInterval(records uint64) Builder {
	b.publishEvery = records
	return b
}

func (b Builder) parametersMustBeValid() {
	if err := b.cfg.Validate(); err != nil {
		panic(err)
	}

	if b.logger == nil {
		panic("logger must not be nil")
	}

	if b.traceAccesses && b.recorder == nil {
		panic("access tracing requires a data recorder")
	}

	if b.publishEvery == 0 {
		panic("publish interval must be positive")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		cfg:          b.cfg,
		logger:       b.logger,
		recorder:     b.recorder,
		monitor:      b.monitor,
		traceName:    b.traceName,
		traceSize:    b.traceSize,
		publishEvery: b.publishEvery,
	}

	s.id = b.runID
	if s.id == "" {
		s.id = sim.NewRunID()
	}

	s.engine = cache.MakeBuilder().
		WithAssociativity(b.cfg.Associativity).
		WithCacheByteSize(b.cfg.CacheByteSize()).
		WithLineByteSize(uint64(b.cfg.LineByteSize)).
		Build("Cache")

	if b.recorder != nil {
		s.execRecorder = datarecording.NewExecRecorder(b.recorder)
		b.recorder.CreateTable(SummaryTableName, summaryEntry{})
	}

	if b.traceAccesses {
		s.tracer = trace.NewDBTracer(b.recorder, s.id)
		s.engine.AcceptHook(s.tracer)
	}

	if b.logger.IsLevelEnabled(logrus.TraceLevel) {
		s.engine.AcceptHook(trace.NewLogTracer(
			b.logger.WithField("run_id", s.id)))
	}

	if b.monitor != nil {
		b.monitor.RegisterGeometry(s.engine.Geometry())
	}

	return s
}
