package sim

import (
	"github.com/sirupsen/logrus"
)

// A LogHook is a hook that is resonsible for recording information from the
// simulation
type LogHook interface {
	Hook
}

// LogHookBase proovides the common logic for all LogHooks
type LogHookBase struct {
	*logrus.Entry
}

// NewLogHookBase creates a LogHookBase that writes through entry.
func NewLogHookBase(entry *logrus.Entry) LogHookBase {
	return LogHookBase{Entry: entry}
}
