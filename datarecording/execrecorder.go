package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTableName is the table that holds the execution information.
const ExecTableName = "exec_info"

const execTimeLayout = "2006-01-02 15:04:05.000000000"

// execInfo is one property of the program execution.
type execInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how the program was invoked and how long it ran.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []execInfo
	now      func() time.Time
}

// NewExecRecorder creates the exec_info table and returns a recorder that
// writes into it.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	e := &ExecRecorder{
		recorder: recorder,
		now:      time.Now,
	}

	e.recorder.CreateTable(ExecTableName, execInfo{})

	return e
}

// Start logs the start time, the command line, and the working directory.
func (e *ExecRecorder) Start() {
	e.Add("Start Time", e.now().Format(execTimeLayout))
	e.Add("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err == nil {
		e.Add("Working Directory", cwd)
	}
}

// Add records an extra property, such as the run ID.
func (e *ExecRecorder) Add(property, value string) {
	e.entries = append(e.entries, execInfo{Property: property, Value: value})
}

// End writes all properties along with the end time and flushes them.
func (e *ExecRecorder) End() {
	e.Add("End Time", e.now().Format(execTimeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTableName, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
