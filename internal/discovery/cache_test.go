package discovery

import (
	"testing"

	"github.com/JonasCGN/kuberbomber/internal/topology"
)

func TestNodeNameForRecoversBareNodeFromSubComponents(t *testing.T) {
	cases := []struct {
		name string
		comp *topology.Component
		want string
	}{
		{
			name: "worker node itself",
			comp: &topology.Component{Name: "worker_node-ip-10-0-0-5", Type: topology.TypeWorkerNode},
			want: "ip-10-0-0-5",
		},
		{
			name: "kubelet sub-component",
			comp: &topology.Component{Name: "wn_kubelet-ip-10-0-0-5", Type: topology.TypeWorkerKubelet, ParentID: "worker_node-ip-10-0-0-5"},
			want: "ip-10-0-0-5",
		},
		{
			name: "pod falls back to its own name",
			comp: &topology.Component{Name: "pod-foo-app", Type: topology.TypePod},
			want: "pod-foo-app",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nodeNameFor(tc.comp); got != tc.want {
				t.Errorf("nodeNameFor() = %q, want %q", got, tc.want)
			}
		})
	}
}
