package k8sobjects

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

var nodeMetricFields = []string{"ready", "allocatable_cpu", "allocatable_memory", "pressure"}

// Node projects nodes (cluster-scoped).
type Node struct{}

func (Node) Kind() Kind { return KindNodes }

func (Node) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	node, ok := obj.(*corev1.Node)
	if !ok {
		return nil, fmt.Errorf("%w: expected Node, got %T", ErrMalformedObject, obj)
	}
	if node.Name == "" {
		return nil, fmt.Errorf("%w: node without metadata.name", ErrMalformedObject)
	}

	rec := newRecord(KindNodes, "", node.Name)
	checksum, err := ComputeChecksum(node)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	ready := "False"
	pressure := "False"
	for _, cond := range node.Status.Conditions {
		switch cond.Type {
		case corev1.NodeReady:
			if cond.Status == corev1.ConditionTrue {
				ready = "True"
			}
		case corev1.NodeMemoryPressure, corev1.NodeDiskPressure, corev1.NodePIDPressure:
			if cond.Status == corev1.ConditionTrue {
				pressure = "True"
			}
		}
	}

	internalIP := ""
	for _, addr := range node.Status.Addresses {
		if addr.Type == corev1.NodeInternalIP {
			internalIP = addr.Address
			break
		}
	}

	rec.Payload = map[string]string{
		"name":               node.Name,
		"ready":              ready,
		"pressure":           pressure,
		"internal_ip":        internalIP,
		"kubelet_version":    node.Status.NodeInfo.KubeletVersion,
		"allocatable_cpu":    TransformValue(node.Status.Allocatable.Cpu().String()),
		"allocatable_memory": TransformValue(node.Status.Allocatable.Memory().String()),
	}
	return rec, nil
}

func (Node) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (Node) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	metrics := make([]zabbix.Metric, 0, len(nodeMetricFields))
	for _, field := range nodeMetricFields {
		metrics = append(metrics, zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,nodes,%s,%s]", rec.Name, field),
			TransformValue(rec.Payload[field]),
		))
	}
	return metrics
}
