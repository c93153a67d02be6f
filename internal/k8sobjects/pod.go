package k8sobjects

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

var (
	jobSuffixRe        = regexp.MustCompile(`-\d+-$`)
	replicaSetSuffixRe = regexp.MustCompile(`-[a-f0-9]{4,}-$`)
	trailingDashRe     = regexp.MustCompile(`-$`)
)

// podStatusFields is the emission order for pod and container rollups.
var podStatusFields = []string{"restart_count", "ready", "not_ready", "status"}

// Pod projects pods; its discovery doubles as the containers discovery
// when container-level crawling is enabled.
type Pod struct{}

func (Pod) Kind() Kind { return KindPods }

func (Pod) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return nil, fmt.Errorf("%w: expected Pod, got %T", ErrMalformedObject, obj)
	}
	if pod.Name == "" {
		return nil, fmt.Errorf("%w: pod without metadata.name", ErrMalformedObject)
	}
	if pod.Namespace == "" {
		return nil, fmt.Errorf("%w: pod %s without metadata.namespace", ErrMalformedObject, pod.Name)
	}
	if cfg.NamespaceExcluded(pod.Namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(KindPods, pod.Namespace, pod.Name)
	checksum, err := ComputeChecksum(pod)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum
	rec.BaseName = podBaseName(pod)

	containers := map[string]int{}
	for _, c := range pod.Spec.Containers {
		containers[c.Name]++
	}
	containersJSON, _ := json.Marshal(containers)

	phase := string(pod.Status.Phase)
	containerStatus := map[string]*ContainerStatus{}
	podData := &ContainerStatus{Status: "OK"}
	ready := true

	for _, cs := range pod.Status.ContainerStatuses {
		st, found := containerStatus[cs.Name]
		if !found {
			st = &ContainerStatus{Status: "OK"}
			containerStatus[cs.Name] = st
		}
		st.RestartCount += int(cs.RestartCount)
		podData.RestartCount += int(cs.RestartCount)

		if cs.Ready {
			st.Ready++
			podData.Ready++
		} else if phase != "Succeeded" && phase != "Running" && phase != "Pending" {
			// of the five phases only Failed and Unknown count as not ready
			st.NotReady++
			podData.NotReady++
		}

		var statusValues []string
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "Completed" {
			statusValues = append(statusValues, "Terminated")
		}
		if phase == "Pending" && cs.State.Waiting != nil && cs.State.Waiting.Reason == "ImagePullBackOff" {
			st.NotReady++
			podData.NotReady++
			statusValues = append(statusValues, "ImagePullBackOff")
		}
		if len(statusValues) > 0 {
			st.Status = "ERROR: " + strings.Join(statusValues, ",")
			podData.Status = st.Status
			ready = false
		}
	}

	containerStatusJSON, _ := json.Marshal(containerStatus)
	podDataJSON, _ := json.Marshal(podData)

	rec.Payload = map[string]string{
		"name":             pod.Name,
		"namespace":        pod.Namespace,
		"base_name":        rec.BaseName,
		"phase":            phase,
		"ready":            strconv.FormatBool(ready),
		"containers":       string(containersJSON),
		"container_status": string(containerStatusJSON),
		"pod_data":         string(podDataJSON),
	}
	return rec, nil
}

func (Pod) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	if cfg.Kubernetes.ContainerCrawling == "container" {
		var containers map[string]int
		if err := json.Unmarshal([]byte(rec.Payload["containers"]), &containers); err != nil {
			return nil
		}
		items := make([]DiscoveryItem, 0, len(containers))
		for _, container := range sortedKeys(containers) {
			items = append(items, DiscoveryItem{
				"{#NAMESPACE}": rec.Namespace,
				"{#NAME}":      rec.BaseName,
				"{#CONTAINER}": container,
				"{#SLUG}":      rec.Slug(rec.BaseName),
			})
		}
		return items
	}
	return []DiscoveryItem{{
		"{#NAMESPACE}": rec.Namespace,
		"{#NAME}":      rec.Name,
		"{#SLUG}":      rec.Slug(rec.Name),
	}}
}

func (Pod) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	if cfg.Kubernetes.ContainerCrawling != "pod" {
		// container mode reports through the containers aggregation
		return nil
	}
	podData, err := parseStatusJSON(rec.Payload["pod_data"])
	if err != nil {
		return nil
	}
	metrics := make([]zabbix.Metric, 0, len(podStatusFields))
	for _, field := range podStatusFields {
		metrics = append(metrics, zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,pods,%s,%s,%s]", rec.Namespace, rec.Name, field),
			TransformValue(podData.Field(field)),
		))
	}
	return metrics
}

// podBaseName strips the generator suffix from generate_name (falling
// back to the plain name), according to the owning controller kind.
func podBaseName(pod *corev1.Pod) string {
	ownerKind := ""
	if len(pod.OwnerReferences) > 0 {
		ownerKind = pod.OwnerReferences[0].Kind
	}

	generateName := pod.Name
	if pod.GenerateName != "" {
		generateName = pod.GenerateName
	}

	switch ownerKind {
	case "Job":
		return jobSuffixRe.ReplaceAllString(generateName, "")
	case "ReplicaSet":
		return replicaSetSuffixRe.ReplaceAllString(generateName, "")
	default:
		return trailingDashRe.ReplaceAllString(generateName, "")
	}
}
