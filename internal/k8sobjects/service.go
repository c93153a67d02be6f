package k8sobjects

import (
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// Service projects services. Per-object metrics are intentionally
// empty: services report through the periodic aggregation
// (num_services / num_ingress_services).
type Service struct{}

func (Service) Kind() Kind { return KindServices }

func (Service) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	svc, ok := obj.(*corev1.Service)
	if !ok {
		return nil, fmt.Errorf("%w: expected Service, got %T", ErrMalformedObject, obj)
	}
	if svc.Name == "" {
		return nil, fmt.Errorf("%w: service without metadata.name", ErrMalformedObject)
	}
	if svc.Namespace == "" {
		return nil, fmt.Errorf("%w: service %s without metadata.namespace", ErrMalformedObject, svc.Name)
	}
	if cfg.NamespaceExcluded(svc.Namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(KindServices, svc.Namespace, svc.Name)
	checksum, err := ComputeChecksum(svc)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	rec.Payload = map[string]string{
		"name":       svc.Name,
		"namespace":  svc.Namespace,
		"type":       string(svc.Spec.Type),
		"cluster_ip": svc.Spec.ClusterIP,
		"is_ingress": strconv.FormatBool(len(svc.Status.LoadBalancer.Ingress) > 0),
	}
	return rec, nil
}

func (Service) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (Service) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return nil
}

// IsIngress reports whether the projected service fronts a load
// balancer ingress.
func IsIngress(rec *Record) bool {
	return rec.Payload["is_ingress"] == "true"
}
