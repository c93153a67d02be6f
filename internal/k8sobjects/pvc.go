package k8sobjects

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

var pvcMetricFields = []string{"phase", "capacity_bytes"}

// PVC projects persistent volume claims. The upstream offers no
// usable watch for claim usage, so the pipeline relists periodically.
type PVC struct{}

func (PVC) Kind() Kind { return KindPVCs }

func (PVC) Project(obj runtime.Object, cfg *config.Config) (*Record, error) {
	pvc, ok := obj.(*corev1.PersistentVolumeClaim)
	if !ok {
		return nil, fmt.Errorf("%w: expected PersistentVolumeClaim, got %T", ErrMalformedObject, obj)
	}
	if pvc.Name == "" {
		return nil, fmt.Errorf("%w: pvc without metadata.name", ErrMalformedObject)
	}
	if pvc.Namespace == "" {
		return nil, fmt.Errorf("%w: pvc %s without metadata.namespace", ErrMalformedObject, pvc.Name)
	}
	if cfg.NamespaceExcluded(pvc.Namespace) {
		return nil, ErrNamespaceExcluded
	}

	rec := newRecord(KindPVCs, pvc.Namespace, pvc.Name)
	checksum, err := ComputeChecksum(pvc)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	storageClass := ""
	if pvc.Spec.StorageClassName != nil {
		storageClass = *pvc.Spec.StorageClassName
	}

	accessModes := make([]string, 0, len(pvc.Spec.AccessModes))
	for _, mode := range pvc.Spec.AccessModes {
		accessModes = append(accessModes, string(mode))
	}

	capacity := ""
	if storage, ok := pvc.Status.Capacity[corev1.ResourceStorage]; ok {
		capacity = storage.String()
	}

	rec.Payload = map[string]string{
		"name":           pvc.Name,
		"namespace":      pvc.Namespace,
		"phase":          string(pvc.Status.Phase),
		"storage_class":  storageClass,
		"access_modes":   strings.Join(accessModes, ","),
		"capacity_bytes": TransformValue(capacity),
	}
	return rec, nil
}

func (PVC) DiscoveryData(rec *Record, cfg *config.Config) []DiscoveryItem {
	return baseDiscovery(rec)
}

func (PVC) ZabbixMetrics(rec *Record, zabbixHost string, cfg *config.Config) []zabbix.Metric {
	metrics := make([]zabbix.Metric, 0, len(pvcMetricFields))
	for _, field := range pvcMetricFields {
		metrics = append(metrics, zabbix.NewMetric(
			zabbixHost,
			fmt.Sprintf("check_kubernetesd[get,pvcs,%s,%s,%s]", rec.Namespace, rec.Name, field),
			rec.Payload[field],
		))
	}
	return metrics
}
