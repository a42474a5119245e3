package trace

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim"
)

// A LogTracer writes one trace-level log line per cache access.
type LogTracer struct {
	sim.LogHookBase
}

// NewLogTracer creates a tracer that logs through entry.
func NewLogTracer(entry *logrus.Entry) *LogTracer {
	return &LogTracer{LogHookBase: sim.NewLogHookBase(entry)}
}

// Func logs the access described by the hook context.
func (t *LogTracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != cache.HookPosAccess {
		return
	}

	info, ok := ctx.Item.(cache.AccessInfo)
	if !ok {
		return
	}

	t.WithFields(logrus.Fields{
		"kind":       info.Kind.String(),
		"address":    info.Address,
		"set":        info.SetIndex,
		"tag":        info.Tag,
		"way":        info.WayID,
		"wrote_back": info.WroteBack,
	}).Trace(info.Outcome.String())
}
