// Package execplane carries out a fault-injection operation against a
// live component, either against a local container runtime or against
// a remote AWS-hosted cluster over SSH.
package execplane

import (
	"context"
	"strings"

	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// Result is the outcome of a single operation invocation.
type Result struct {
	Success bool
	Output  string
}

// Plane carries out an operation against a component. Both backends
// must satisfy the same success-classification rules: an SSH session
// that drops with status 255 while killing a critical process, and a
// "process not found" signal, both count as success.
type Plane interface {
	Invoke(ctx context.Context, comp *topology.Component, operation string) (Result, error)
}

// classifyShellResult applies the shared success-classification rule
// used by both backends after running a kill-style shell command.
// exitCode is the process's exit status; -1 means the session dropped
// without a normal exit (e.g. an SSH channel closed mid-command).
func classifyShellResult(exitCode int, stdout, stderr string) Result {
	switch {
	case exitCode == 0:
		return Result{Success: true, Output: strings.TrimSpace(stdout)}
	case exitCode == 255 || exitCode == -1:
		return Result{Success: true, Output: "session terminated (likely successful process kill)"}
	case strings.Contains(stderr, "no process found") || strings.Contains(stderr, "process not found"):
		return Result{Success: true, Output: "process already dead"}
	default:
		return Result{Success: false, Output: strings.TrimSpace(stderr)}
	}
}
