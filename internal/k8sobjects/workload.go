package k8sobjects

import (
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

var workloadMetricFields = []string{"replicas", "ready_replicas", "available_replicas"}

// Deployment projects deployments.
type Deployment struct{}

func (Deployment) Kind() Kind { return KindDeployments }

func (Deployment) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	dep, ok := obj.(*appsv1.Deployment)
	if !ok {
		return nil, fmt.Errorf("%w: expected Deployment, got %T", ErrMalformedObject, obj)
	}
	return projectWorkload(KindDeployments, dep.Name, dep.Namespace, dep, cfg, map[string]string{
		"replicas":           formatReplicas(dep.Spec.Replicas),
		"ready_replicas":     strconv.Itoa(int(dep.Status.ReadyReplicas)),
		"available_replicas": strconv.Itoa(int(dep.Status.AvailableReplicas)),
	})
}

func (Deployment) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return workloadDiscovery(rec, "Deployment")
}

func (Deployment) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return workloadMetrics(rec, zabbixHost)
}

// StatefulSet projects statefulsets.
type StatefulSet struct{}

func (StatefulSet) Kind() Kind { return KindStatefulSets }

func (StatefulSet) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	sts, ok := obj.(*appsv1.StatefulSet)
	if !ok {
		return nil, fmt.Errorf("%w: expected StatefulSet, got %T", ErrMalformedObject, obj)
	}
	return projectWorkload(KindStatefulSets, sts.Name, sts.Namespace, sts, cfg, map[string]string{
		"replicas":           formatReplicas(sts.Spec.Replicas),
		"ready_replicas":     strconv.Itoa(int(sts.Status.ReadyReplicas)),
		"available_replicas": strconv.Itoa(int(sts.Status.AvailableReplicas)),
	})
}

func (StatefulSet) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return workloadDiscovery(rec, "StatefulSet")
}

func (StatefulSet) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return workloadMetrics(rec, zabbixHost)
}

// DaemonSet projects daemonsets; desired/ready counts come from the
// scheduling status rather than a replica spec.
type DaemonSet struct{}

func (DaemonSet) Kind() Kind { return KindDaemonSets }

func (DaemonSet) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	ds, ok := obj.(*appsv1.DaemonSet)
	if !ok {
		return nil, fmt.Errorf("%w: expected DaemonSet, got %T", ErrMalformedObject, obj)
	}
	return projectWorkload(KindDaemonSets, ds.Name, ds.Namespace, ds, cfg, map[string]string{
		"replicas":           strconv.Itoa(int(ds.Status.DesiredNumberScheduled)),
		"ready_replicas":     strconv.Itoa(int(ds.Status.NumberReady)),
		"available_replicas": strconv.Itoa(int(ds.Status.NumberAvailable)),
	})
}

func (DaemonSet) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return workloadDiscovery(rec, "DaemonSet")
}

func (DaemonSet) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	return workloadMetrics(rec, zabbixHost)
}

func projectWorkload(kind Kind, name, namespace string, obj interface{}, cfg *config.Config, payload map[string]string) (*Record, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: %s without metadata.name", ErrMalformedObject, kind)
	}
	if namespace == "" {
		return nil, fmt.Errorf("%w: %s %s without metadata.namespace", ErrMalformedObject, kind, name)
	}
	if cfg.NamespaceExcluded(namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(kind, namespace, name)
	checksum, err := ComputeChecksum(obj)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	payload["name"] = name
	payload["namespace"] = namespace
	rec.Payload = payload
	return rec, nil
}

func workloadDiscovery(rec *Record, kindTag string) []DiscoveryItem {
	items := baseDiscovery(rec)
	items[0]["{#KIND}"] = kindTag
	return items
}

func workloadMetrics(rec *Record, zabbixHost string) []zabbix.Metric {
	metrics := make([]zabbix.Metric, 0, len(workloadMetricFields))
	for _, field := range workloadMetricFields {
		metrics = append(metrics, zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,%s,%s,%s,%s]", rec.Kind, rec.Namespace, rec.Name, field),
			TransformValue(rec.Payload[field]),
		))
	}
	return metrics
}

func formatReplicas(replicas *int32) string {
	if replicas == nil {
		return "0"
	}
	return strconv.Itoa(int(*replicas))
}
