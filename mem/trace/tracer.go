package trace

import (
	"fmt"

	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim"
)

// AccessTableName is the table the DB tracer writes into.
const AccessTableName = "cache_accesses"

// accessEntry represents a cache access in the database. Addresses and tags
// are stored as hex text since SQLite integers are signed 64-bit.
type accessEntry struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Address   string `json:"address"`
	SetIndex  int    `json:"set_index"`
	Tag       string `json:"tag"`
	Way       int    `json:"way"`
	Hit       bool   `json:"hit"`
	WroteBack bool   `json:"wrote_back"`
}

// A DBTracer is a hook that records every cache access into a database
// through a data recorder.
type DBTracer struct {
	runID        string
	idGenerator  sim.IDGenerator
	dataRecorder datarecording.DataRecorder
	seq          uint64
}

// NewDBTracer creates a new database-based tracer. Rows are tagged with
// runID so several runs can share one recorder.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	runID string,
) *DBTracer {
	t := &DBTracer{
		runID:        runID,
		idGenerator:  sim.NewSequentialIDGenerator(runID),
		dataRecorder: dataRecorder,
	}

	t.dataRecorder.CreateTable(AccessTableName, accessEntry{})

	return t
}

// Func records the access described by the hook context.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != cache.HookPosAccess {
		return
	}

	info, ok := ctx.Item.(cache.AccessInfo)
	if !ok {
		return
	}

	t.seq++

	entry := accessEntry{
		ID:        t.idGenerator.Generate(),
		RunID:     t.runID,
		Seq:       t.seq,
		Kind:      info.Kind.String(),
		Address:   fmt.Sprintf("0x%x", info.Address),
		SetIndex:  info.SetIndex,
		Tag:       fmt.Sprintf("0x%x", info.Tag),
		Way:       info.WayID,
		Hit:       info.Outcome == cache.Hit,
		WroteBack: info.WroteBack,
	}

	t.dataRecorder.InsertData(AccessTableName, entry)
}

// NumRecorded returns how many accesses the tracer has recorded.
func (t *DBTracer) NumRecorded() uint64 {
	return t.seq
}
