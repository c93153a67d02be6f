package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	zabbixItemsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_zabbix_items_sent_total",
			Help: "Metric items delivered to the zabbix sink.",
		},
		[]string{"resource"},
	)

	zabbixItemsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_zabbix_items_failed_total",
			Help: "Metric items the zabbix sink rejected or dropped.",
		},
		[]string{"resource"},
	)

	webAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_zabbix_web_api_requests_total",
			Help: "Inventory API submissions by resource and action.",
		},
		[]string{"resource", "action"},
	)

	webAPIFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_zabbix_web_api_failures_total",
			Help: "Failed inventory API submissions.",
		},
		[]string{"resource"},
	)

	watchRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_zabbix_watch_restarts_total",
			Help: "Watch stream reopens after errors or server timeouts.",
		},
		[]string{"resource"},
	)

	storeObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "k8s_zabbix_store_objects",
			Help: "Records currently held per resource store.",
		},
		[]string{"resource"},
	)
)

func init() {
	_ = prometheus.Register(zabbixItemsSent)
	_ = prometheus.Register(zabbixItemsFailed)
	_ = prometheus.Register(webAPIRequests)
	_ = prometheus.Register(webAPIFailures)
	_ = prometheus.Register(watchRestarts)
	_ = prometheus.Register(storeObjects)
}
