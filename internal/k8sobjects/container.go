package k8sobjects

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// ContainerStatus is the per-container rollup carried in a pod record
// and summed across pods sharing a base name during aggregation.
type ContainerStatus struct {
	RestartCount int    `json:"restart_count"`
	Ready        int    `json:"ready"`
	NotReady     int    `json:"not_ready"`
	Status       string `json:"status"`
}

// Field returns a named counter as a string, for metric emission.
func (c *ContainerStatus) Field(name string) string {
	switch name {
	case "restart_count":
		return strconv.Itoa(c.RestartCount)
	case "ready":
		return strconv.Itoa(c.Ready)
	case "not_ready":
		return strconv.Itoa(c.NotReady)
	case "status":
		return c.Status
	default:
		return ""
	}
}

func parseStatusJSON(raw string) (*ContainerStatus, error) {
	var st ContainerStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("parse container status: %w", err)
	}
	return &st, nil
}

// AggregateContainers sums container rollups over a pod store
// snapshot, grouped by (namespace, pod base name, container name).
// Numeric fields add element-wise; an incoming ERROR status overwrites
// the kept one. Pods whose container_status payload cannot be parsed
// are logged and skipped for this cycle.
func AggregateContainers(pods []*Record) map[string]map[string]map[string]*ContainerStatus {
	grouped := map[string]map[string]map[string]*ContainerStatus{}
	for _, pod := range pods {
		var containerStatus map[string]*ContainerStatus
		if err := json.Unmarshal([]byte(pod.Payload["container_status"]), &containerStatus); err != nil {
			logrus.Errorf("aggregate containers: pod %s: %v", pod.UID(), err)
			continue
		}

		ns := pod.Namespace
		if grouped[ns] == nil {
			grouped[ns] = map[string]map[string]*ContainerStatus{}
		}
		base := grouped[ns]
		if base[pod.BaseName] == nil {
			base[pod.BaseName] = map[string]*ContainerStatus{}
		}

		for name, incoming := range containerStatus {
			existing, found := base[pod.BaseName][name]
			if !found {
				cp := *incoming
				base[pod.BaseName][name] = &cp
				continue
			}
			existing.RestartCount += incoming.RestartCount
			existing.Ready += incoming.Ready
			existing.NotReady += incoming.NotReady
			if len(incoming.Status) >= 5 && incoming.Status[:5] == "ERROR" {
				existing.Status = incoming.Status
			}
		}
	}
	return grouped
}

// ContainerMetrics emits one metric triple per container field.
func ContainerMetrics(zabbixHost, namespace, baseName, containerName string, status *ContainerStatus) []zabbix.Metric {
	metrics := make([]zabbix.Metric, 0, len(podStatusFields))
	for _, field := range podStatusFields {
		metrics = append(metrics, zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,containers,%s,%s,%s,%s]", namespace, baseName, containerName, field),
			TransformValue(status.Field(field)),
		))
	}
	return metrics
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
