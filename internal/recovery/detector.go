// Package recovery implements the post-fault recovery detector: after
// a fault is injected, fan out one probe per pod in the current
// discovery snapshot and report how long it took every pod to come
// back healthy, bounded by an outer timeout. Time spent refreshing the
// discovery snapshot itself is excluded from the reported elapsed
// time.
package recovery

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	"golang.org/x/sync/errgroup"

	"github.com/JonasCGN/kuberbomber/internal/healthclient"
)

// PodLister returns the current set of pods backing an application,
// refreshed as needed — listing is a discovery snapshot and is
// excluded from elapsed-time accounting.
type PodLister interface {
	ListPods(ctx context.Context, namespace, app string) ([]corev1.Pod, error)
}

// Prober probes a single pod's health. healthclient.Client satisfies
// this via its ProbePod method; tests substitute a fake.
type Prober interface {
	ProbePod(ctx context.Context, namespace, podName string, port int32, path string) healthclient.ProbeResult
}

// Detector drives the concurrent post-fault health fan-out.
type Detector struct {
	Health Prober
	Lister PodLister
	Port   int32
	Path   string
}

// New constructs a Detector.
func New(health Prober, lister PodLister, port int32, path string) *Detector {
	return &Detector{Health: health, Lister: lister, Port: port, Path: path}
}

// Outcome reports how recovery detection went for one application.
type Outcome struct {
	Application    string
	Recovered      bool
	ElapsedSeconds float64
}

// WaitForRecovery polls namespace/app's pods (re-listing via Lister to
// honour any discovery refresh) until every pod is healthy or timeout
// elapses, reporting elapsed probing time only — snapshot-refresh time
// is excluded.
func (d *Detector) WaitForRecovery(ctx context.Context, namespace, app string, timeout time.Duration, pollInterval time.Duration) (Outcome, error) {
	deadline := time.Now().Add(timeout)
	var probeElapsed time.Duration

	for {
		pods, err := d.Lister.ListPods(ctx, namespace, app)
		if err != nil {
			return Outcome{Application: app}, err
		}

		probeStart := time.Now()
		healthy, err := d.allHealthy(ctx, namespace, pods)
		probeElapsed += time.Since(probeStart)
		if err != nil {
			return Outcome{Application: app}, err
		}
		if healthy {
			return Outcome{Application: app, Recovered: true, ElapsedSeconds: probeElapsed.Seconds()}, nil
		}

		if time.Now().After(deadline) {
			return Outcome{Application: app, Recovered: false, ElapsedSeconds: probeElapsed.Seconds()}, nil
		}

		select {
		case <-ctx.Done():
			return Outcome{Application: app, Recovered: false, ElapsedSeconds: probeElapsed.Seconds()}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// allHealthy fans out one probe goroutine per pod via errgroup and
// waits for all of them to finish.
func (d *Detector) allHealthy(ctx context.Context, namespace string, pods []corev1.Pod) (bool, error) {
	if len(pods) == 0 {
		return false, nil
	}

	results := make([]bool, len(pods))
	g, gctx := errgroup.WithContext(ctx)

	for i, pod := range pods {
		i, pod := i, pod
		g.Go(func() error {
			res := d.Health.ProbePod(gctx, namespace, pod.Name, d.Port, d.Path)
			results[i] = res.Healthy
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, healthy := range results {
		if !healthy {
			return false, nil
		}
	}
	return true, nil
}
