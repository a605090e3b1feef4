package topology

import "testing"

func TestClassifyKey(t *testing.T) {
	cases := []struct {
		id       string
		fallback ComponentType
		wantType ComponentType
		wantRest string
	}{
		{"wn_kubelet-ip-10-0-0-5", TypeWorkerNode, TypeWorkerKubelet, "ip-10-0-0-5"},
		{"cp_apiserver-ip-10-0-0-1", TypeControlPlane, TypeCPAPIServer, "ip-10-0-0-1"},
		{"wn_proxy-node-a", TypeWorkerNode, TypeWorkerProxy, "node-a"},
		{"ip-10-0-0-9", TypeWorkerNode, TypeWorkerNode, "ip-10-0-0-9"},
	}
	for _, tc := range cases {
		gotType, gotRest := ClassifyKey(tc.id, tc.fallback)
		if gotType != tc.wantType || gotRest != tc.wantRest {
			t.Errorf("ClassifyKey(%q, %q) = (%q, %q), want (%q, %q)", tc.id, tc.fallback, gotType, gotRest, tc.wantType, tc.wantRest)
		}
	}
}
