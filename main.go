// Command cachesim simulates a single-level cache against a memory trace.
package main

import "github.com/sarchlab/cachesim/cmd"

func main() {
	cmd.Execute()
}
