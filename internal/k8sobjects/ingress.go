package k8sobjects

import (
	"encoding/json"
	"fmt"
	"strconv"

	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// Ingress projects ingresses.
type Ingress struct{}

func (Ingress) Kind() Kind { return KindIngresses }

func (Ingress) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	ing, ok := obj.(*networkingv1.Ingress)
	if !ok {
		return nil, fmt.Errorf("%w: expected Ingress, got %T", ErrMalformedObject, obj)
	}
	if ing.Name == "" {
		return nil, fmt.Errorf("%w: ingress without metadata.name", ErrMalformedObject)
	}
	if ing.Namespace == "" {
		return nil, fmt.Errorf("%w: ingress %s without metadata.namespace", ErrMalformedObject, ing.Name)
	}
	if cfg.NamespaceExcluded(ing.Namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(KindIngresses, ing.Namespace, ing.Name)
	checksum, err := ComputeChecksum(ing)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	hosts := make([]string, 0, len(ing.Spec.Rules))
	for _, rule := range ing.Spec.Rules {
		if rule.Host != "" {
			hosts = append(hosts, rule.Host)
		}
	}
	hostsJSON, _ := json.Marshal(hosts)

	class := ""
	if ing.Spec.IngressClassName != nil {
		class = *ing.Spec.IngressClassName
	}

	rec.Payload = map[string]string{
		"name":      ing.Name,
		"namespace": ing.Namespace,
		"class":     class,
		"hosts":     string(hostsJSON),
		"num_hosts": strconv.Itoa(len(hosts)),
	}
	return rec, nil
}

func (Ingress) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (Ingress) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return []zabbix.Metric{
		zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,ingresses,%s,%s,num_hosts]", rec.Namespace, rec.Name),
			rec.Payload["num_hosts"],
		),
	}
}
