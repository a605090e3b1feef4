package topology

import "strings"

// knownPrefixes maps a configuration-identifier prefix to the
// sub-component type it denotes.
var knownPrefixes = []struct {
	prefix string
	typ    ComponentType
}{
	{"wn_runtime-", TypeWorkerRuntime},
	{"wn_proxy-", TypeWorkerProxy},
	{"wn_kubelet-", TypeWorkerKubelet},
	{"cp_apiserver-", TypeCPAPIServer},
	{"cp_manager-", TypeCPManager},
	{"cp_scheduler-", TypeCPScheduler},
	{"cp_store-", TypeCPStore},
}

// ClassifyKey resolves a configuration identifier to its component
// type and the suffix identifying the parent node, e.g.
// "wn_kubelet-ip-10-0-0-5" -> (TypeWorkerKubelet, "ip-10-0-0-5").
// An identifier with no known prefix is treated as the bare type
// passed in as fallback.
func ClassifyKey(id string, fallback ComponentType) (ComponentType, string) {
	for _, p := range knownPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.typ, strings.TrimPrefix(id, p.prefix)
		}
	}
	return fallback, id
}
