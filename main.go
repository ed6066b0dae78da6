// The main package for the snapcrawl executable.
package main

import (
	"github.com/jordanhale/snapcrawl/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
