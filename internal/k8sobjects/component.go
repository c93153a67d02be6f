package k8sobjects

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// Component projects component statuses (cluster-scoped, list-only:
// the upstream API offers no watch for them).
type Component struct{}

func (Component) Kind() Kind { return KindComponents }

func (Component) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	comp, ok := obj.(*corev1.ComponentStatus)
	if !ok {
		return nil, fmt.Errorf("%w: expected ComponentStatus, got %T", ErrMalformedObject, obj)
	}
	if comp.Name == "" {
		return nil, fmt.Errorf("%w: component without metadata.name", ErrMalformedObject)
	}

	rec := newRecord(KindComponents, "", comp.Name)
	checksum, err := ComputeChecksum(comp)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	healthy := "False"
	message := ""
	for _, cond := range comp.Conditions {
		if cond.Type == corev1.ComponentHealthy {
			if cond.Status == corev1.ConditionTrue {
				healthy = "True"
			}
			message = cond.Message
		}
	}

	rec.Payload = map[string]string{
		"name":    comp.Name,
		"healthy": healthy,
		"message": message,
	}
	return rec, nil
}

func (Component) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (Component) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return []zabbix.Metric{
		zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,components,%s,healthy]", rec.Name),
			rec.Payload["healthy"],
		),
	}
}
