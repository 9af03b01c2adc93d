// Command dlm is the CLI driver of the download engine's control surface.
// Grounded on the teacher's cmd/root.go + cmd/get.go (cobra command tree,
// flag names), stripped of the bubbletea TUI plumbing per spec.md's
// Non-goal on window/UI glue.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
