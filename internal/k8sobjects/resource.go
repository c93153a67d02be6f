package k8sobjects

import (
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// ErrNamespaceExcluded is returned by a projector when the object's
// namespace matches the configured exclusion pattern. The event is
// discarded before the store is touched.
var ErrNamespaceExcluded = errors.New("namespace excluded")

// ErrMalformedObject marks raw objects missing required metadata.
// The single event is dropped; the store is not mutated.
var ErrMalformedObject = errors.New("malformed object")

// DiscoveryItem is one tag-map of a zabbix low-level-discovery payload.
type DiscoveryItem map[string]string

// Resource is the capability bundle of one kind: a pure projection
// from the raw object plus the discovery and metric shapes.
type Resource interface {
	Kind() Kind

	// Project maps one raw object to a projected record. It is pure
	// and side-effect-free: same input bytes, same output record.
	Project(obj runtime.Object, cfg *config.Config) (*Record, error)

	// DiscoveryData returns the discovery tag-maps for a record.
	DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem

	// ZabbixMetrics returns the metric triples for a record.
	ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric
}

var registry = map[Kind]Resource{
	KindNodes:        Node{},
	KindComponents:   Component{},
	KindServices:     Service{},
	KindDeployments:  Deployment{},
	KindStatefulSets: StatefulSet{},
	KindDaemonSets:   DaemonSet{},
	KindPods:         Pod{},
	KindSecrets:      Secret{},
	KindIngresses:    Ingress{},
	KindPVCs:         PVC{},
}

// ForKind returns the resource implementation for a kind, or nil for
// derived kinds (containers) that have no projector of their own.
func ForKind(kind Kind) Resource {
	return registry[kind]
}

// DiscoveryKey is the zabbix item key carrying a kind's discovery
// payload.
func DiscoveryKey(kind Kind) string {
	return fmt.Sprintf("check_kubernetesd[discover,%s]", kind)
}

// DiscoveryValue encodes discovery items the way the zabbix LLD
// processor expects them.
func DiscoveryValue(items []DiscoveryItem) (string, error) {
	payload := map[string][]DiscoveryItem{"data": items}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal discovery payload: %w", err)
	}
	return string(raw), nil
}

// baseDiscovery is the default single-descriptor shape shared by most
// kinds; cluster-scoped kinds carry the literal "None" namespace.
func baseDiscovery(rec *Record) []DiscoveryItem {
	ns := rec.Namespace
	if ns == "" {
		ns = "None"
	}
	return []DiscoveryItem{{
		"{#NAME}":      rec.Name,
		"{#NAMESPACE}": ns,
		"{#SLUG}":      rec.Slug(rec.Name),
	}}
}
