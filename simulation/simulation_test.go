package simulation

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/trace"
	"github.com/sarchlab/cachesim/monitoring"
)

// 64 direct-mapped sets of 16 bytes; 0x0 and 0x400 share set 0.
const sampleTrace = `l 0x0 1
s 0x0 2
l 0x400 3
x 0x10 5
l 0x0 4
`

func sampleConfig() config.Config {
	return config.Config{
		Associativity:  1,
		LineByteSize:   16,
		CacheSizeKB:    1,
		MissPenalty:    30,
		DirtyWBPenalty: 2,
	}
}

var _ = Describe("Simulation", func() {
	var (
		logger  *logrus.Logger
		logHook *test.Hook
		builder Builder
	)

	BeforeEach(func() {
		logger, logHook = test.NewNullLogger()
		builder = MakeBuilder().
			WithConfig(sampleConfig()).
			WithLogger(logger).
			WithRunID("run1").
			WithTrace("sample", uint64(len(sampleTrace)))
	})

	It("should account cycles like the original tool", func() {
		s := builder.Build()

		sum, err := s.Run(context.Background(), strings.NewReader(sampleTrace))

		Expect(err).NotTo(HaveOccurred())
		Expect(sum.RunID).To(Equal("run1"))
		Expect(sum.Config).To(Equal(sampleConfig()))
		Expect(sum.MemoryAccesses).To(Equal(uint64(4)))
		Expect(sum.Loads).To(Equal(uint64(3)))
		Expect(sum.Stores).To(Equal(uint64(1)))
		Expect(sum.SkippedRecords).To(Equal(uint64(1)))
		Expect(sum.Instructions).To(Equal(uint64(10)))
		Expect(sum.Hits).To(Equal(uint64(1)))
		Expect(sum.Misses).To(Equal(uint64(3)))
		Expect(sum.DirtyWriteBacks).To(Equal(uint64(1)))
		Expect(sum.Cycles).To(Equal(uint64(3*30 + 10 + 1*2)))
		Expect(sum.MissRate()).To(BeNumerically("~", 0.75))
		Expect(sum.CPI()).To(BeNumerically("~", 10.2))
	})

	It("should log skipped lines", func() {
		s := builder.Build()

		_, err := s.Run(context.Background(), strings.NewReader(sampleTrace))
		Expect(err).NotTo(HaveOccurred())

		var warnings []*logrus.Entry
		for _, e := range logHook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				warnings = append(warnings, e)
			}
		}

		Expect(warnings).To(HaveLen(1))
		Expect(warnings[0].Message).To(Equal("skipping trace line"))
		Expect(warnings[0].Data).To(HaveKeyWithValue("run_id", "run1"))
		Expect(logHook.LastEntry().Message).To(Equal("simulation finished"))
	})

	It("should log each access at trace level", func() {
		logger.SetLevel(logrus.TraceLevel)
		s := builder.Build()

		_, err := s.Run(context.Background(), strings.NewReader(sampleTrace))
		Expect(err).NotTo(HaveOccurred())

		var traced int
		for _, e := range logHook.AllEntries() {
			if e.Level == logrus.TraceLevel {
				traced++
			}
		}

		Expect(traced).To(Equal(4))
		Expect(s.Engine().NumHooks()).To(Equal(1))
	})

	It("should refuse to run twice", func() {
		s := builder.Build()

		_, err := s.Run(context.Background(), strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Run(context.Background(), strings.NewReader(""))
		Expect(err).To(MatchError(ErrAlreadyRun))
	})

	It("should stop at a malformed line", func() {
		s := builder.Build()

		sum, err := s.Run(context.Background(),
			strings.NewReader("l 0x0 1\ns zz 2\nl 0x10 1\n"))

		var parseErr *trace.ParseError
		Expect(errors.As(err, &parseErr)).To(BeTrue())
		Expect(parseErr.Line).To(Equal(2))
		Expect(err).To(MatchError(trace.ErrMalformed))
		Expect(sum.MemoryAccesses).To(Equal(uint64(1)))
		Expect(sum.Misses).To(Equal(uint64(1)))
	})

	It("should stop when the context is cancelled", func() {
		s := builder.Build()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sum, err := s.Run(ctx, strings.NewReader(sampleTrace))

		Expect(err).To(MatchError(context.Canceled))
		Expect(sum.MemoryAccesses).To(BeZero())
	})

	It("should add the write-back penalty only at the end", func() {
		s := builder.Build()

		sum, err := s.Run(context.Background(),
			strings.NewReader("s 0x0 0\ns 0x400 0\n"))

		Expect(err).NotTo(HaveOccurred())
		Expect(sum.DirtyWriteBacks).To(Equal(uint64(1)))
		Expect(sum.Cycles).To(Equal(uint64(2*30 + 2)))
		Expect(sum.CPI()).To(BeZero())
	})

	Context("with a monitor", func() {
		var m *monitoring.Monitor

		BeforeEach(func() {
			m = monitoring.NewMonitor()
			builder = builder.WithMonitor(m).WithPublishInterval(1)
		})

		It("should publish the final snapshot", func() {
			s := builder.Build()

			_, err := s.Run(context.Background(), strings.NewReader(sampleTrace))
			Expect(err).NotTo(HaveOccurred())

			snap := m.LatestSnapshot()
			Expect(snap.Done).To(BeTrue())
			Expect(snap.Records).To(Equal(uint64(4)))
			Expect(snap.Skipped).To(Equal(uint64(1)))
			Expect(snap.Cache.Misses).To(Equal(uint64(3)))
			Expect(snap.Cycles).To(Equal(uint64(102)))
		})
	})

	Context("with a recorder", func() {
		var (
			db       *sql.DB
			recorder datarecording.DataRecorder
		)

		BeforeEach(func() {
			var err error
			db, err = sql.Open("sqlite3",
				filepath.Join(GinkgoT().TempDir(), "run.sqlite3"))
			Expect(err).NotTo(HaveOccurred())

			recorder = datarecording.NewWithDB(db)
			builder = builder.WithRecorder(recorder)
		})

		AfterEach(func() {
			Expect(recorder.Close()).To(Succeed())
		})

		countRows := func(table string) int {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
			Expect(err).NotTo(HaveOccurred())

			return n
		}

		It("should write the run summary and execution info", func() {
			s := builder.Build()

			_, err := s.Run(context.Background(), strings.NewReader(sampleTrace))
			Expect(err).NotTo(HaveOccurred())

			Expect(recorder.ListTables()).To(Equal(
				[]string{datarecording.ExecTableName, SummaryTableName}))

			var (
				runID  string
				misses int
				cycles int
			)
			err = db.QueryRow(
				"SELECT RunID, Misses, Cycles FROM " + SummaryTableName,
			).Scan(&runID, &misses, &cycles)
			Expect(err).NotTo(HaveOccurred())
			Expect(runID).To(Equal("run1"))
			Expect(misses).To(Equal(3))
			Expect(cycles).To(Equal(102))

			var value string
			err = db.QueryRow(
				"SELECT Value FROM " + datarecording.ExecTableName +
					" WHERE Property = 'Run ID'",
			).Scan(&value)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("run1"))
		})

		It("should trace every access when asked", func() {
			s := builder.WithAccessTracing().Build()

			_, err := s.Run(context.Background(), strings.NewReader(sampleTrace))
			Expect(err).NotTo(HaveOccurred())

			Expect(countRows(trace.AccessTableName)).To(Equal(4))

			var wroteBack int
			err = db.QueryRow(
				"SELECT COUNT(*) FROM " + trace.AccessTableName +
					" WHERE WroteBack = 1",
			).Scan(&wroteBack)
			Expect(err).NotTo(HaveOccurred())
			Expect(wroteBack).To(Equal(1))
		})

		It("should let several runs share one recorder", func() {
			first := builder.WithAccessTracing().Build()
			second := builder.WithAccessTracing().WithRunID("run2").Build()

			_, err := first.Run(context.Background(),
				strings.NewReader(sampleTrace))
			Expect(err).NotTo(HaveOccurred())

			_, err = second.Run(context.Background(),
				strings.NewReader(sampleTrace))
			Expect(err).NotTo(HaveOccurred())

			Expect(recorder.ListTables()).To(HaveLen(3))
			Expect(countRows(SummaryTableName)).To(Equal(2))
			Expect(countRows(trace.AccessTableName)).To(Equal(8))

			var runs int
			err = db.QueryRow(
				"SELECT COUNT(DISTINCT RunID) FROM " + trace.AccessTableName,
			).Scan(&runs)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(Equal(2))
		})
	})

	Context("builder", func() {
		It("should panic on an invalid configuration", func() {
			cfg := sampleConfig()
			cfg.Associativity = 3

			Expect(func() { builder.WithConfig(cfg).Build() }).To(Panic())
		})

		It("should panic when tracing has no recorder", func() {
			Expect(func() { builder.WithAccessTracing().Build() }).To(Panic())
		})

		It("should generate a run ID", func() {
			s := MakeBuilder().WithLogger(logger).Build()

			Expect(s.ID()).NotTo(BeEmpty())
			Expect(s.Engine().Geometry().NumSets).To(Equal(1024))
		})
	})
})
