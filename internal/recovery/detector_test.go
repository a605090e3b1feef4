package recovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/JonasCGN/kuberbomber/internal/healthclient"
)

type fakeLister struct {
	pods []corev1.Pod
}

func (f *fakeLister) ListPods(_ context.Context, _, _ string) ([]corev1.Pod, error) {
	return f.pods, nil
}

type fakeProber struct {
	healthyAfter int32
	calls        int32
}

func (f *fakeProber) ProbePod(_ context.Context, _, podName string, _ int32, _ string) healthclient.ProbeResult {
	n := atomic.AddInt32(&f.calls, 1)
	return healthclient.ProbeResult{PodName: podName, Healthy: n > f.healthyAfter}
}

func TestWaitForRecoveryReturnsRecoveredWhenAllPodsHealthy(t *testing.T) {
	lister := &fakeLister{pods: []corev1.Pod{{ObjectMeta: metav1.ObjectMeta{Name: "a"}}, {ObjectMeta: metav1.ObjectMeta{Name: "b"}}}}
	prober := &fakeProber{healthyAfter: -1}
	d := New(prober, lister, 8080, "/healthz")

	outcome, err := d.WaitForRecovery(context.Background(), "default", "foo-app", time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Recovered {
		t.Errorf("expected recovered=true")
	}
}

func TestWaitForRecoveryTimesOutWhenPodsStayUnhealthy(t *testing.T) {
	lister := &fakeLister{pods: []corev1.Pod{{ObjectMeta: metav1.ObjectMeta{Name: "a"}}}}
	prober := &fakeProber{healthyAfter: 1 << 30}
	d := New(prober, lister, 8080, "/healthz")

	outcome, err := d.WaitForRecovery(context.Background(), "default", "foo-app", 50*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Recovered {
		t.Errorf("expected recovered=false on timeout")
	}
}

func TestWaitForRecoveryReportsNotRecoveredWithNoPods(t *testing.T) {
	lister := &fakeLister{pods: nil}
	prober := &fakeProber{}
	d := New(prober, lister, 8080, "/healthz")

	outcome, err := d.WaitForRecovery(context.Background(), "default", "foo-app", 20*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Recovered {
		t.Errorf("expected recovered=false with zero pods")
	}
}
