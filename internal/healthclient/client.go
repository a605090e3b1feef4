// Package healthclient implements the pod health-probe abstraction:
// given a pod endpoint, report whether it is answering. Used by both
// the recovery detector and the availability integrator's
// application-health probe.
package healthclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// acceptStatusCodes is the accept-set: a pod counts as healthy if it
// answers with either 200 (serving) or 404 (process is up and routing
// HTTP, even if the probed path itself 404s).
var acceptStatusCodes = map[int]bool{
	http.StatusOK:       true,
	http.StatusNotFound: true,
}

// Client resolves a pod's IP via the Kubernetes API and probes it over
// HTTP.
type Client struct {
	Clientset kubernetes.Interface
	HTTP      *http.Client
}

// New constructs a Client with a short default per-probe timeout; the
// outer bound on total recovery-wait time is owned by the recovery
// detector, not this client.
func New(clientset kubernetes.Interface) *Client {
	return &Client{
		Clientset: clientset,
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ProbeResult is the outcome of probing a single pod.
type ProbeResult struct {
	PodName    string
	Healthy    bool
	StatusCode int
	Err        error
}

// ProbePod fetches the pod's IP and issues an HTTP GET against the
// given port/path, classifying the result via acceptStatusCodes.
func (c *Client) ProbePod(ctx context.Context, namespace, podName string, port int32, path string) ProbeResult {
	pod, err := c.Clientset.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return ProbeResult{PodName: podName, Err: fmt.Errorf("healthclient: getting pod %s/%s: %w", namespace, podName, err)}
	}
	if pod.Status.PodIP == "" {
		return ProbeResult{PodName: podName, Err: fmt.Errorf("healthclient: pod %s/%s has no IP yet", namespace, podName)}
	}

	url := fmt.Sprintf("http://%s", net.JoinHostPort(pod.Status.PodIP, portString(port))) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{PodName: podName, Err: fmt.Errorf("healthclient: building request: %w", err)}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ProbeResult{PodName: podName, Err: err}
	}
	defer resp.Body.Close()

	return ProbeResult{
		PodName:    podName,
		Healthy:    acceptStatusCodes[resp.StatusCode],
		StatusCode: resp.StatusCode,
	}
}

// IsApplicationAvailable reports whether all pods backing app are
// individually healthy, the "application is serving" predicate used by
// the availability integrator.
func (c *Client) IsApplicationAvailable(ctx context.Context, namespace string, pods []corev1.Pod, port int32, path string) (bool, error) {
	if len(pods) == 0 {
		return false, nil
	}
	for _, pod := range pods {
		res := c.ProbePod(ctx, namespace, pod.Name, port, path)
		if res.Err != nil || !res.Healthy {
			return false, nil
		}
	}
	return true, nil
}

func portString(p int32) string {
	return fmt.Sprintf("%d", p)
}
