// Package marker implements stage-completion gating for pipeline runs.
// A marker is a file or directory whose presence is the sole evidence
// that a stage finished; the filesystem is the pipeline's only durable
// progress record.
package marker

import "os"

// Gate reports whether a stage's output marker exists.
// This abstraction allows injecting a fake filesystem in tests.
type Gate interface {
	// Complete returns true iff the marker path exists at call time.
	// The check is never cached: re-runs may happen days after a
	// partial failure and must see the current filesystem.
	Complete(path string) bool
}

// FSGate checks markers against the real filesystem.
//
// An empty directory counts as complete. This is a deliberately lenient
// policy to avoid redundant reprocessing; the tradeoff is that a crash
// which created the directory but none of its content will look done.
type FSGate struct{}

// NewGate creates a filesystem-backed Gate.
func NewGate() *FSGate {
	return &FSGate{}
}

// Complete returns true iff path exists.
func (g *FSGate) Complete(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Verify FSGate implements Gate at compile time.
var _ Gate = (*FSGate)(nil)
