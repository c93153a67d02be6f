package k8sobjects

import (
	"github.com/samber/lo"
)

// Kind is one watched resource kind. The string value is used in
// zabbix keys, inventory routes and configuration exclude lists.
type Kind string

const (
	KindNodes        Kind = "nodes"
	KindComponents   Kind = "components"
	KindServices     Kind = "services"
	KindDeployments  Kind = "deployments"
	KindStatefulSets Kind = "statefulsets"
	KindDaemonSets   Kind = "daemonsets"
	KindPods         Kind = "pods"
	KindContainers   Kind = "containers"
	KindSecrets      Kind = "secrets"
	KindIngresses    Kind = "ingresses"
	KindPVCs         Kind = "pvcs"
)

// Capability describes how a kind is accessed and emitted.
type Capability struct {
	APIGroup     string // core_v1, apps_v1, networking_v1; empty for derived kinds
	Watchable    bool   // supports a streaming watch
	Namespaced   bool
	Discoverable bool // participates in zabbix discovery on its own
}

var capabilities = map[Kind]Capability{
	KindNodes:        {APIGroup: "core_v1", Watchable: true, Namespaced: false, Discoverable: true},
	KindComponents:   {APIGroup: "core_v1", Watchable: false, Namespaced: false, Discoverable: true},
	KindServices:     {APIGroup: "core_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindDeployments:  {APIGroup: "apps_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindStatefulSets: {APIGroup: "apps_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindDaemonSets:   {APIGroup: "apps_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindPods:         {APIGroup: "core_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindContainers:   {Watchable: false, Namespaced: true, Discoverable: false}, // derived from pods
	KindSecrets:      {APIGroup: "core_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindIngresses:    {APIGroup: "networking_v1", Watchable: true, Namespaced: true, Discoverable: true},
	KindPVCs:         {APIGroup: "core_v1", Watchable: false, Namespaced: true, Discoverable: true},
}

// Capability returns the capability record; unknown kinds get a zero value.
func (k Kind) Capability() Capability {
	return capabilities[k]
}

func (k Kind) String() string {
	return string(k)
}

// AllKinds lists every supported kind in a stable order. "containers"
// is absent: it has no independent lifecycle; the daemon appends it to
// its pipeline kinds whether or not pods are active.
func AllKinds() []Kind {
	return []Kind{
		KindNodes,
		KindComponents,
		KindServices,
		KindDeployments,
		KindStatefulSets,
		KindDaemonSets,
		KindPods,
		KindSecrets,
		KindIngresses,
		KindPVCs,
	}
}

// ExcludeKinds filters kinds by their configured exclude names.
func ExcludeKinds(kinds []Kind, excluded []string) []Kind {
	return lo.Filter(kinds, func(k Kind, _ int) bool {
		return !lo.Contains(excluded, string(k))
	})
}

// KindNames maps kinds to their string names.
func KindNames(kinds []Kind) []string {
	return lo.Map(kinds, func(k Kind, _ int) string { return string(k) })
}
