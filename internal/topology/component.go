// Package topology holds the static component model: identity, type,
// MTTF/MTTR, parent linkage, and the allowed destructive operations per
// component. Topology objects are immutable after construction; only
// status/failure-count/downtime fields are mutated by the iteration
// driver.
package topology

import "fmt"

// ComponentType enumerates the component kinds in the topology.
type ComponentType string

const (
	TypePod           ComponentType = "pod"
	TypeContainer     ComponentType = "container"
	TypeWorkerNode    ComponentType = "worker-node"
	TypeWorkerRuntime ComponentType = "worker-runtime"
	TypeWorkerProxy   ComponentType = "worker-proxy"
	TypeWorkerKubelet ComponentType = "worker-kubelet"
	TypeControlPlane  ComponentType = "control-plane"
	TypeCPAPIServer   ComponentType = "cp-apiserver"
	TypeCPManager     ComponentType = "cp-manager"
	TypeCPScheduler   ComponentType = "cp-scheduler"
	TypeCPStore       ComponentType = "cp-store"
)

// Status is the mutable health state the driver flips as events fire
// and recoveries complete.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusFailed  Status = "failed"
)

// Operation catalogue: one destructive operation name per supported
// fault-injection action.
const (
	OpKillAllProcesses   = "kill-all-processes"
	OpKillInit           = "kill-init"
	OpShutdownAndRestart = "shutdown-and-restart"
	OpKillCriticalProcs  = "kill-critical-processes"
	OpRestartRuntime     = "restart-runtime"
	OpKillProxy          = "kill-proxy"
	OpKillKubelet        = "kill-kubelet"
	OpKillAPIServer      = "kill-apiserver"
	OpKillManager        = "kill-manager"
	OpKillScheduler      = "kill-scheduler"
	OpKillStore          = "kill-store"

	// OpStartNodeInstance is the self-healing counterpart to
	// OpShutdownAndRestart: it is never dispatched on its own (it
	// doesn't appear in AllowedOperations) but is the start
	// operation the heal handler passes back to the execution plane
	// once the soak period has elapsed.
	OpStartNodeInstance = "start-node-instance"
)

// AllowedOperations is the normative table of which operations apply
// to which component type.
var AllowedOperations = map[ComponentType][]string{
	TypePod:           {OpKillAllProcesses, OpKillInit},
	TypeContainer:     {OpKillAllProcesses, OpKillInit},
	TypeWorkerNode:    {OpShutdownAndRestart, OpKillCriticalProcs},
	TypeWorkerRuntime: {OpRestartRuntime},
	TypeWorkerProxy:   {OpKillProxy},
	TypeWorkerKubelet: {OpKillKubelet},
	TypeControlPlane:  {OpShutdownAndRestart, OpKillCriticalProcs},
	TypeCPAPIServer:   {OpKillAPIServer},
	TypeCPManager:     {OpKillManager},
	TypeCPScheduler:   {OpKillScheduler},
	TypeCPStore:       {OpKillStore},
}

// shutdownClassOperations are dispatched through the shutdown/heal
// handler rather than through the ordinary recovery detector.
var shutdownClassOperations = map[string]bool{
	OpShutdownAndRestart: true,
}

// IsShutdownClass reports whether an operation must go through the
// shutdown/heal handler.
func IsShutdownClass(operation string) bool {
	return shutdownClassOperations[operation]
}

// Component is a single node in the flat topology table. Sub-components
// reference their parent by identifier only — never a bidirectional
// pointer.
type Component struct {
	Name      string
	Type      ComponentType
	MTTFHours float64
	MTTRHours float64 // meaningful only when HasMTTR is set (non-shutdown-class ops don't use it)
	HasMTTR   bool
	ParentID  string // empty if this is a top-level component

	Status           Status
	FailureCount     int
	AccumulatedHours float64 // accumulated downtime, in hours
}

// Operations returns this component's allowed destructive operations.
func (c *Component) Operations() []string {
	return AllowedOperations[c.Type]
}

// Validate checks the topology's structural invariants.
func (c *Component) Validate(byName map[string]*Component) error {
	if c.Name == "" {
		return fmt.Errorf("component has empty name")
	}
	if _, ok := AllowedOperations[c.Type]; !ok {
		return fmt.Errorf("component %q has unknown type %q", c.Name, c.Type)
	}
	if c.MTTFHours <= 0 {
		return fmt.Errorf("component %q has non-positive mttf_hours %v", c.Name, c.MTTFHours)
	}
	if c.HasMTTR && c.MTTRHours < 0 {
		return fmt.Errorf("component %q has negative mttr_hours %v", c.Name, c.MTTRHours)
	}
	if c.ParentID != "" {
		parent, ok := byName[c.ParentID]
		if !ok {
			return fmt.Errorf("component %q references missing parent %q", c.Name, c.ParentID)
		}
		if !compatibleParent(c.Type, parent.Type) {
			return fmt.Errorf("component %q (%s) has incompatible parent %q (%s)", c.Name, c.Type, c.ParentID, parent.Type)
		}
	}
	return nil
}

// compatibleParent enforces that a sub-component's parent has a
// compatible type, e.g. a kubelet's parent must be a worker-node.
func compatibleParent(child, parent ComponentType) bool {
	switch child {
	case TypeContainer:
		return parent == TypePod
	case TypeWorkerRuntime, TypeWorkerProxy, TypeWorkerKubelet:
		return parent == TypeWorkerNode
	case TypeCPAPIServer, TypeCPManager, TypeCPScheduler, TypeCPStore:
		return parent == TypeControlPlane
	default:
		return true
	}
}

// ResetIterationState zeroes the per-iteration mutable fields; the
// driver resets per-component counters at the start of every
// iteration.
func (c *Component) ResetIterationState() {
	c.Status = StatusHealthy
	c.FailureCount = 0
	c.AccumulatedHours = 0
}
