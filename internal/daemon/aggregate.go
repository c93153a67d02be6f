package daemon

import (
	"sort"
	"strconv"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// reportGlobalData computes derived views: service totals and the
// per-(namespace, base name, container) rollup over the pod store.
// Both are gated on their own discovery having been announced.
func (d *Daemon) reportGlobalData(resource k8sobjects.Kind) {
	if _, discovered := d.state.DiscoverySent(resource); !discovered {
		logrus.Infof("skipping aggregation for %s, discovery not sent yet", resource)
		return
	}

	switch resource {
	case k8sobjects.KindServices:
		d.reportServiceAggregates()
	case k8sobjects.KindContainers:
		d.reportContainerAggregates()
	}
}

func (d *Daemon) reportServiceAggregates() {
	snapshot := d.state.Snapshot(k8sobjects.KindServices)
	numServices := len(snapshot)
	numIngress := lo.CountBy(snapshot, k8sobjects.IsIngress)

	metrics := []zabbix.Metric{
		zabbix.NewMetric(d.cfg.Zabbix.Host, "check_kubernetes[get,services,num_services]", strconv.Itoa(numServices)),
		zabbix.NewMetric(d.cfg.Zabbix.Host, "check_kubernetes[get,services,num_ingress_services]", strconv.Itoa(numIngress)),
	}
	d.sendDataToZabbix(k8sobjects.KindServices, metrics)
}

func (d *Daemon) reportContainerAggregates() {
	pods := d.state.Snapshot(k8sobjects.KindPods)
	grouped := k8sobjects.AggregateContainers(pods)

	var metrics []zabbix.Metric
	for _, ns := range sortedMapKeys(grouped) {
		byBase := grouped[ns]
		for _, baseName := range sortedMapKeys(byBase) {
			byContainer := byBase[baseName]
			for _, containerName := range sortedMapKeys(byContainer) {
				metrics = append(metrics, k8sobjects.ContainerMetrics(
					d.cfg.Zabbix.Host, ns, baseName, containerName, byContainer[containerName],
				)...)
			}
		}
	}
	d.sendDataToZabbix(k8sobjects.KindContainers, metrics)
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
