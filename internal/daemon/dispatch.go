package daemon

import (
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// updateDiscovery relists the kind when the refresh ledger is stale,
// then pushes the discovery enumeration and stamps the ledger. Pods
// with container-level crawling stamp the containers ledger too.
func (d *Daemon) updateDiscovery(resource k8sobjects.Kind) {
	res := k8sobjects.ForKind(resource)
	if res == nil {
		logrus.Errorf("update discovery: no resource implementation for %s", resource)
		return
	}

	refreshInterval := time.Duration(d.cfg.Intervals.DataRefresh) * time.Second
	if d.state.NeedsRefresh(resource, refreshInterval) {
		records, err := d.listProjected(resource)
		if err != nil {
			logrus.Errorf("refresh %s: %v", resource, err)
		} else {
			logrus.Infof("refreshing [%s] uid list + data and checking for orphans: %d", resource, len(records))
			d.state.Reconcile(resource, records)
		}
	}

	snapshot := d.state.Snapshot(resource)
	items := lo.FlatMap(snapshot, func(rec *k8sobjects.Record, _ int) []k8sobjects.DiscoveryItem {
		return res.DiscoveryData(rec, d.cfg)
	})

	if len(items) > 0 {
		d.sendDiscoveryToZabbix(resource, items)
	} else {
		logrus.Warnf("send discovery: resource %q has no discovery data", resource)
	}

	now := d.clock()
	d.state.SetDiscoverySent(resource, now)
	if resource == k8sobjects.KindPods && d.cfg.Kubernetes.ContainerCrawling == "container" {
		d.state.SetDiscoverySent(k8sobjects.KindContainers, now)
	}
}

func (d *Daemon) sendDiscoveryToZabbix(resource k8sobjects.Kind, items []k8sobjects.DiscoveryItem) {
	if !lo.Contains(d.zabbixResources, resource) {
		logrus.Warnf("resource %s is not activated for zabbix, active resources are: %v",
			resource, k8sobjects.KindNames(d.zabbixResources))
		return
	}

	value, err := k8sobjects.DiscoveryValue(items)
	if err != nil {
		logrus.Errorf("send discovery %s: %v", resource, err)
		return
	}

	// pod discovery doubles as containers discovery in container mode
	key := k8sobjects.DiscoveryKey(resource)
	if resource == k8sobjects.KindPods && d.cfg.Kubernetes.ContainerCrawling == "container" {
		key = k8sobjects.DiscoveryKey(k8sobjects.KindContainers)
	}

	metric := zabbix.NewMetric(d.cfg.Zabbix.Host, key, value)
	result := d.sendToZabbix([]zabbix.Metric{metric})
	if result.Failed > 0 {
		logrus.Errorf("failed to send zabbix discovery: %s", key)
	} else if d.cfg.Zabbix.Debug {
		logrus.Infof("successfully sent zabbix discovery: %s", key)
	}
}

// resendData republishes outdated records: metrics in one batch under
// the I5/I6 discovery gates, inventory per object with ADDED or
// MODIFIED. Containers never resend; their data flows through the
// aggregation task.
func (d *Daemon) resendData(resource k8sobjects.Kind) {
	if resource == k8sobjects.KindContainers {
		return
	}
	res := k8sobjects.ForKind(resource)
	if res == nil {
		return
	}

	now := d.clock()
	resendInterval := time.Duration(d.cfg.Intervals.DataResend) * time.Second
	discoveryAt, discovered := d.state.DiscoverySent(resource)
	storeObjects.WithLabelValues(string(resource)).Set(float64(d.state.Count(resource)))

	// zabbix: collect under the lock, send outside it
	var metrics []zabbix.Metric
	var uids []string
	empty := false
	d.state.View(resource, func(objects map[string]*k8sobjects.Record) {
		if len(objects) == 0 {
			empty = true
			return
		}
		for uid, obj := range objects {
			if discovered && obj.Added.After(discoveryAt) {
				logrus.Infof("skipping resend of %s, discovery for %s at %s is older than the record",
					uid, resource, discoveryAt.Format(time.RFC3339))
				continue
			}
			if obj.LastSentZabbix.Before(now.Add(-resendInterval)) {
				objMetrics := res.ZabbixMetrics(obj.Clone(), d.cfg.Zabbix.Host, d.cfg)
				if len(objMetrics) > 0 {
					metrics = append(metrics, objMetrics...)
					uids = append(uids, uid)
				}
			}
		}
	})
	if empty {
		logrus.Warnf("no resource data available for %s, stop delivery", resource)
		return
	}

	if len(metrics) > 0 {
		if !discovered {
			logrus.Infof("skipping resend for %s, discovery not sent yet", resource)
		} else if d.sendDataToZabbix(resource, metrics) {
			d.state.MarkZabbixSent(resource, uids, d.clock())
		}
	}

	// inventory: never-submitted records are ADDED, dirty or outdated
	// ones are MODIFIED
	type webAction struct {
		rec    *k8sobjects.Record
		action string
	}
	var actions []webAction
	d.state.View(resource, func(objects map[string]*k8sobjects.Record) {
		for _, obj := range objects {
			switch {
			case obj.IsUnsubmittedWeb():
				actions = append(actions, webAction{obj.Clone(), "ADDED"})
			case obj.DirtyWeb:
				actions = append(actions, webAction{obj.Clone(), "MODIFIED"})
			case obj.LastSentWeb.Before(now.Add(-resendInterval)):
				logrus.Debugf("resend web: %s/%s data because it is outdated", resource, obj.Name)
				actions = append(actions, webAction{obj.Clone(), "MODIFIED"})
			}
		}
	})
	for _, a := range actions {
		if d.sendToWebAPI(resource, a.rec, a.action) {
			d.state.MarkWebSent(resource, []string{a.rec.UID()}, d.clock())
		}
	}
}

// sendObject delivers a single dirty object right after a watch
// event, per-sink and per-record rate limited. A rate-limited sink
// keeps the dirty flag so the resend task picks the record up.
func (d *Daemon) sendObject(resource k8sobjects.Kind, obj *k8sobjects.Record, eventType string) {
	res := k8sobjects.ForKind(resource)
	now := d.clock()
	rateLimit := d.cfg.RateLimit()

	if obj.DirtyZabbix {
		if obj.LastSentZabbix.Before(now.Add(-rateLimit)) {
			metrics := res.ZabbixMetrics(obj, d.cfg.Zabbix.Host, d.cfg)
			if len(metrics) > 0 && d.sendDataToZabbixForObject(resource, obj, metrics) {
				d.state.MarkZabbixSent(resource, []string{obj.UID()}, d.clock())
			}
		} else {
			logrus.Debugf("obj >>>type: %s, name: %s/%s<<< not sending to zabbix, rate limited (%ds)",
				resource, obj.Namespace, obj.Name, d.cfg.Intervals.RateLimitSeconds)
		}
	}

	if obj.DirtyWeb {
		if obj.LastSentWeb.Before(now.Add(-rateLimit)) {
			if d.sendToWebAPI(resource, obj, eventType) {
				d.state.MarkWebSent(resource, []string{obj.UID()}, d.clock())
			}
		} else {
			logrus.Debugf("obj >>>type: %s, name: %s/%s<<< not sending to web, rate limited (%ds)",
				resource, obj.Namespace, obj.Name, d.cfg.Intervals.RateLimitSeconds)
		}
	}
}

// deleteObject propagates a watch-observed deletion to the inventory
// sink. The metric sink has no delete action.
func (d *Daemon) deleteObject(resource k8sobjects.Kind, obj *k8sobjects.Record) {
	d.sendToWebAPI(resource, obj, "deleted")
}

// sendDataToZabbixForObject applies the discovery gates for a single
// record before handing the batch over.
func (d *Daemon) sendDataToZabbixForObject(resource k8sobjects.Kind, obj *k8sobjects.Record, metrics []zabbix.Metric) bool {
	discoveryAt, discovered := d.state.DiscoverySent(resource)
	if !discovered {
		logrus.Infof("skipping send for %s, discovery not sent yet", resource)
		return false
	}
	if obj.Added.After(discoveryAt) {
		logrus.Infof("skipping send of %s, discovery for %s at %s is older than the record",
			obj.UID(), resource, discoveryAt.Format(time.RFC3339))
		return false
	}
	return d.sendDataToZabbix(resource, metrics)
}

// sendDataToZabbix pushes a metric batch, honoring the zabbix
// resource filter and single-debug mode. Returns whether the batch
// was fully accepted; callers keep dirty flags on failure.
func (d *Daemon) sendDataToZabbix(resource k8sobjects.Kind, metrics []zabbix.Metric) bool {
	if _, discovered := d.state.DiscoverySent(resource); !discovered {
		logrus.Infof("skipping send_data for %s, discovery not sent yet", resource)
		return false
	}
	if !lo.Contains(d.zabbixResources, resource) {
		return false
	}
	if len(metrics) == 0 {
		return false
	}

	if d.cfg.Zabbix.SingleDebug {
		ok := true
		for _, metric := range metrics {
			result := d.sendToZabbix([]zabbix.Metric{metric})
			if result.Failed > 0 {
				logrus.Errorf("failed to send zabbix item: %s", metric.Key)
				ok = false
			} else {
				logrus.Infof("successfully sent zabbix item: %s", metric.Key)
			}
		}
		return ok
	}

	result := d.sendToZabbix(metrics)
	if result.Failed > 0 {
		logrus.Errorf("failed to send %d zabbix items, processed %d items [%s]",
			result.Failed, result.Processed, resource)
		zabbixItemsFailed.WithLabelValues(string(resource)).Add(float64(result.Failed))
		return false
	}
	logrus.Debugf("successfully sent %d zabbix items [%s]", len(metrics), resource)
	zabbixItemsSent.WithLabelValues(string(resource)).Add(float64(len(metrics)))
	return true
}

// sendToZabbix is the lowest send wrapper: dry-run is a sender
// implementation, debug logging happens here.
func (d *Daemon) sendToZabbix(metrics []zabbix.Metric) zabbix.Response {
	result, err := d.sender.Send(metrics)
	if err != nil {
		logrus.Errorf("zabbix send: %v", err)
	}
	if d.cfg.Zabbix.Debug {
		for _, metric := range metrics {
			logrus.Infof("===> sending to zabbix: >>>%s = %s<<<", metric.Key, metric.Value)
		}
	}
	return result
}

// sendToWebAPI posts one object to the inventory API. Disabled or
// filtered submissions are suppressed quietly.
func (d *Daemon) sendToWebAPI(resource k8sobjects.Kind, obj *k8sobjects.Record, action string) bool {
	if !lo.Contains(d.webResources, resource) {
		return false
	}
	if !d.cfg.WebAPI.Enable {
		logrus.Debugf("suppressing submission of %s %s/%s", resource, obj.Namespace, obj.Name)
		return false
	}

	if err := d.webAPI.Send(string(resource), obj.Payload, action); err != nil {
		logrus.Errorf("web api %s %s/%s: %v", resource, obj.Namespace, obj.Name, err)
		webAPIFailures.WithLabelValues(string(resource)).Inc()
		return false
	}
	webAPIRequests.WithLabelValues(string(resource), action).Inc()
	return true
}

// sendHeartbeat pushes the api liveness marker.
func (d *Daemon) sendHeartbeat() {
	epoch := strconv.FormatInt(d.clock().Unix(), 10)
	result := d.sendToZabbix([]zabbix.Metric{
		zabbix.NewMetric(d.cfg.Zabbix.Host, "check_kubernetesd[discover,api]", epoch),
	})
	if result.Failed > 0 {
		logrus.Error("failed to send heartbeat to zabbix")
	} else {
		logrus.Debug("successfully sent heartbeat to zabbix")
	}
}
