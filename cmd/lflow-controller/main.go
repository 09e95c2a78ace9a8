// Command lflow-controller is the thin CLI wrapper around the logical-flow
// translation core: it wires the resource-reference index, conjunction-id
// allocator, translation cache, row compiler, delta engine, and adjunct
// emitters together and drives them from configuration. Database ingestion
// itself remains out of scope (spec.md §1); this binary's job is wiring and
// lifecycle, in the spirit of the teacher's own CLI-wrapper shape.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
