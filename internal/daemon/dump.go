package daemon

import (
	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
)

// DumpTimestamps logs per-record send timestamps and the discovery
// ledger; wired to SIGUSR1.
func (d *Daemon) DumpTimestamps() {
	logrus.Info("=== listing count of data held per resource ===")
	for _, resource := range d.resources {
		d.state.View(resource, func(objects map[string]*k8sobjects.Record) {
			for uid, obj := range objects {
				logrus.Infof("resource=%s, [%s], last_sent_zabbix=%s, last_sent_web=%s",
					resource, uid, obj.LastSentZabbix.Format("2006-01-02T15:04:05"),
					obj.LastSentWeb.Format("2006-01-02T15:04:05"))
			}
		})
		if discoveredAt, ok := d.state.DiscoverySent(resource); ok {
			logrus.Infof("resource=%s, last_discovery_sent=%s", resource, discoveredAt.Format("2006-01-02T15:04:05"))
		}
	}
}

// DumpData logs every record payload; wired to SIGUSR2.
func (d *Daemon) DumpData() {
	logrus.Info("=== listing all data held per resource ===")
	for _, resource := range d.resources {
		d.state.View(resource, func(objects map[string]*k8sobjects.Record) {
			for uid, obj := range objects {
				logrus.Infof("resource=%s, object_name=%s, object_data=%v", resource, uid, obj.Payload)
			}
		})
	}
}

// Resources returns the active pipeline kinds.
func (d *Daemon) Resources() []k8sobjects.Kind {
	return d.resources
}
