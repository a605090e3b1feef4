package execplane

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"

	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// shellFor is the shell command for each operation, run inside the
// target container with `kubectl exec`-equivalent semantics.
var shellFor = map[string]string{
	topology.OpKillAllProcesses:  "kill -9 -1",
	topology.OpKillInit:          "kill -9 1",
	topology.OpKillCriticalProcs: "pkill -9 -f 'containerd|dockerd|kubelet' || true",
	topology.OpRestartRuntime:    "systemctl restart containerd",
	topology.OpKillProxy:         "pkill -9 kube-proxy",
	topology.OpKillKubelet:       "pkill -9 kubelet",
	topology.OpKillAPIServer:     "pkill -9 kube-apiserver",
	topology.OpKillManager:       "pkill -9 kube-controller-manager",
	topology.OpKillScheduler:     "pkill -9 kube-scheduler",
	topology.OpKillStore:         "pkill -9 etcd",
}

// PodLocator resolves a component to the namespace/pod/container triple
// to exec into. Kept as an interface so execplane doesn't need to know
// how components map to live pods — discovery/topology own that.
type PodLocator interface {
	Locate(comp *topology.Component) (namespace, pod, container string, err error)
}

// Local is the in-cluster backend: it execs the operation's shell
// command directly inside the target pod's container via the
// Kubernetes exec subresource, the way a developer would run
// `kubectl exec -- sh -c ...`.
type Local struct {
	Client  kubernetes.Interface
	Config  *rest.Config
	Locator PodLocator
	Log     logr.Logger
}

// NewLocal constructs a Local backend from an in-cluster or kubeconfig
// rest.Config.
func NewLocal(cfg *rest.Config, locator PodLocator, log logr.Logger) (*Local, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("execplane: building kubernetes client: %w", err)
	}
	return &Local{Client: clientset, Config: cfg, Locator: locator, Log: log}, nil
}

func (l *Local) Invoke(ctx context.Context, comp *topology.Component, operation string) (Result, error) {
	if operation == topology.OpShutdownAndRestart || operation == topology.OpStartNodeInstance {
		return Result{}, fmt.Errorf("execplane: %q requires the AWS-backed remote execution plane, not the in-cluster exec backend", operation)
	}

	cmd, ok := shellFor[operation]
	if !ok {
		return Result{}, fmt.Errorf("execplane: no local shell mapping for operation %q", operation)
	}

	namespace, pod, container, err := l.Locator.Locate(comp)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: locating pod for %s: %w", comp.Name, err)
	}

	req := l.Client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   []string{"sh", "-c", cmd},
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(l.Config, "POST", req.URL())
	if err != nil {
		return Result{}, fmt.Errorf("execplane: building SPDY executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})

	exitCode := 0
	if err != nil {
		if cee, ok := err.(utilexec.CodeExitError); ok {
			exitCode = cee.Code
		} else {
			exitCode = -1
			stderr.WriteString(err.Error())
		}
	}

	l.Log.V(1).Info("local exec complete", "component", comp.Name, "operation", operation, "exitCode", exitCode)
	return classifyShellResult(exitCode, stdout.String(), stderr.String()), nil
}
