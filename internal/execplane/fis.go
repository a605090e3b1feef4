package execplane

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/JonasCGN/kuberbomber/internal/awsapi"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// FIS is the native-cloud fault-injection backend: instead of reaching
// into a node over SSH or SSM, it starts a pre-defined AWS FIS
// experiment template that performs the equivalent disruption. It is
// selectable per run as an alternative to Remote for non-shutdown-class
// operations against worker-node and control-plane-class components —
// shutdown-class operations always go through Remote's dedicated
// SSH-stop/EC2-start sequence, since a self-heal run needs the
// deterministic stop/soak/start timing the heal handler drives, not an
// experiment whose rollback timing FIS owns.
type FIS struct {
	AWS *awsapi.Client

	// ExperimentTemplateIDs maps an operation name to the FIS
	// experiment template that carries it out.
	ExperimentTemplateIDs map[string]string
	Log                   logr.Logger
}

// NewFIS constructs an FIS-backed Plane.
func NewFIS(aws *awsapi.Client, templateIDs map[string]string, log logr.Logger) *FIS {
	return &FIS{AWS: aws, ExperimentTemplateIDs: templateIDs, Log: log}
}

func (f *FIS) Invoke(ctx context.Context, comp *topology.Component, operation string) (Result, error) {
	if topology.IsShutdownClass(operation) || operation == topology.OpStartNodeInstance {
		return Result{}, fmt.Errorf("execplane: %q is shutdown-class and must run through the remote SSH/EC2 plane, not FIS", operation)
	}

	templateID, ok := f.ExperimentTemplateIDs[operation]
	if !ok {
		return Result{}, fmt.Errorf("execplane: no fis experiment template configured for operation %q", operation)
	}

	experimentID, err := f.AWS.StartExperiment(ctx, templateID)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: starting fis experiment %s for %s: %w", templateID, comp.Name, err)
	}

	f.Log.Info("fis experiment started", "component", comp.Name, "operation", operation, "experimentId", experimentID)
	return Result{Success: true, Output: fmt.Sprintf("fis experiment %s started", experimentID)}, nil
}
