// Package report turns the counters of a simulation run into the derived
// metrics and prints them.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/natefinch/atomic"

	"github.com/sarchlab/cachesim/config"
)

// Summary holds everything known at the end of a run.
type Summary struct {
	RunID  string        `json:"run_id,omitempty"`
	Config config.Config `json:"config"`

	MemoryAccesses uint64 `json:"memory_accesses"`
	Loads          uint64 `json:"loads"`
	Stores         uint64 `json:"stores"`
	SkippedRecords uint64 `json:"skipped_records"`
	Instructions   uint64 `json:"instructions"`
	Cycles         uint64 `json:"cycles"`

	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	DirtyWriteBacks uint64 `json:"dirty_write_backs"`
}

// MissRate returns misses per access, or 0 before any access.
func (s Summary) MissRate() float64 {
	if s.MemoryAccesses == 0 {
		return 0
	}

	return float64(s.Misses) / float64(s.MemoryAccesses)
}

// CPI returns cycles per instruction, or 0 before any instruction.
func (s Summary) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}

	return float64(s.Cycles) / float64(s.Instructions)
}

var heading = color.New(color.Bold, color.FgCyan)

// WriteSettings prints the cache configuration.
func WriteSettings(w io.Writer, c config.Config) {
	heading.Fprintln(w, "CACHE SETTINGS")
	fmt.Fprintf(w, "     %s%8d\n", "Associativity:", c.Associativity)
	fmt.Fprintf(w, "        %s%8d kilobyte\n", "Cache Size:", c.CacheSizeKB)
	fmt.Fprintf(w, "        %s%8d byte\n", "Block Size:", c.LineByteSize)
	fmt.Fprintf(w, "      %s%8d cycles\n", "Miss Penalty:", c.MissPenalty)
	fmt.Fprintf(w, "  %s%8d cycles\n\n", "Dirty WB Penalty:", c.DirtyWBPenalty)
}

// WriteText prints the access, hit-miss, and CPI statistics.
func WriteText(w io.Writer, s Summary) {
	heading.Fprintln(w, "CACHE ACCESS STATS")
	fmt.Fprintf(w, "   %s%12d\n", "Memory Accesses:", s.MemoryAccesses)
	fmt.Fprintf(w, "             %s%12d\n", "Loads:", s.Loads)
	fmt.Fprintf(w, "            %s%12d\n\n", "Stores:", s.Stores)

	heading.Fprintln(w, "CACHE HIT-MISS STATS")
	fmt.Fprintf(w, "         %s%12.5f%%\n", "Miss Rate:", s.MissRate()*100)
	fmt.Fprintf(w, "      %s%12d\n", "Cache Misses:", s.Misses)
	fmt.Fprintf(w, "        %s%12d\n\n", "Cache Hits:", s.Hits)

	heading.Fprintln(w, "CACHE CPI STATS")
	fmt.Fprintf(w, "Cycles/Instruction: %11.5f\n", s.CPI())
	fmt.Fprintf(w, "      %s%12d\n", "Instructions:", s.Instructions)
	fmt.Fprintf(w, "            %s%12d\n", "Cycles:", s.Cycles)
	fmt.Fprintf(w, " %s%12d\n", "Dirty Write-Backs:", s.DirtyWriteBacks)
}

// MarshalJSON includes the derived metrics.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary

	return json.Marshal(struct {
		plain

		MissRate float64 `json:"miss_rate"`
		CPI      float64 `json:"cpi"`
	}{plain(s), s.MissRate(), s.CPI()})
}

// WriteJSONFile writes the summary as indented JSON. The file is replaced
// atomically so readers never see a partial report.
func WriteJSONFile(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	data = append(data, '\n')

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
