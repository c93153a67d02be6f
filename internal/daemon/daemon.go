package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8s"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/store"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

// ClusterClient is the upstream facade the pipelines consume; the
// real implementation lives in internal/k8s, tests use a fake.
type ClusterClient interface {
	List(ctx context.Context, kind k8sobjects.Kind) ([]runtime.Object, error)
	Watch(ctx context.Context, kind k8sobjects.Kind) (watch.Interface, error)
}

// InventorySink posts single objects with an action verb.
type InventorySink interface {
	Send(resource string, payload map[string]string, action string) error
}

// Daemon runs one pipeline per active resource kind: a watch (or
// relist) task feeding the store, a discovery task, a resend task and,
// for services and containers, an aggregation task. One heartbeat
// task covers the whole process.
type Daemon struct {
	cfg    *config.Config
	client ClusterClient
	state  *store.State
	sender zabbix.Sender
	webAPI InventorySink

	resources       []k8sobjects.Kind
	zabbixResources []k8sobjects.Kind
	webResources    []k8sobjects.Kind

	heartbeat *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// clock is swappable in tests
	clock func() time.Time
}

// New assembles a daemon. The sender should already be the dry-run
// implementation when zabbix_dry_run is set.
func New(cfg *config.Config, client ClusterClient, state *store.State, sender zabbix.Sender, webAPI InventorySink) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	active := k8sobjects.ExcludeKinds(allPipelineKinds(), cfg.Resources.Exclude)

	d := &Daemon{
		cfg:             cfg,
		client:          client,
		state:           state,
		sender:          sender,
		webAPI:          webAPI,
		resources:       active,
		zabbixResources: k8sobjects.ExcludeKinds(active, cfg.Zabbix.ResourcesExclude),
		webResources:    k8sobjects.ExcludeKinds(active, cfg.WebAPI.ResourcesExclude),
		ctx:             ctx,
		cancel:          cancel,
		clock:           time.Now,
	}

	logrus.Infof("init k8s-zabbix watcher for resources: %v", k8sobjects.KindNames(d.resources))
	logrus.Infof("zabbix host: %s / zabbix proxy or server: %s", cfg.Zabbix.Host, cfg.Zabbix.Server)
	if cfg.WebAPI.Enable {
		logrus.Infof("web api host %s with resources %v", cfg.WebAPI.Host, k8sobjects.KindNames(d.webResources))
	}
	return d
}

// allPipelineKinds is AllKinds plus the derived containers kind,
// which rides on the pods store.
func allPipelineKinds() []k8sobjects.Kind {
	return append(k8sobjects.AllKinds(), k8sobjects.KindContainers)
}

func (d *Daemon) active(kind k8sobjects.Kind) bool {
	return lo.Contains(d.resources, kind)
}

// Run starts every task. It returns immediately; Stop blocks until
// the tasks drained or the join timeout expired.
func (d *Daemon) Run() {
	d.startDataTasks()
	d.startDiscoveryTasks()
	d.startResendTasks()
	d.startHeartbeat()
}

func (d *Daemon) startDataTasks() {
	resendInterval := time.Duration(d.cfg.Intervals.DataResend) * time.Second
	aggregationDelay := time.Duration(d.cfg.Intervals.Discovery+5) * time.Second

	for _, resource := range d.resources {
		switch resource {
		case k8sobjects.KindContainers, k8sobjects.KindServices:
			// aggregation waits until the underlying discovery ran
			resource := resource
			d.runEvery("aggregate-"+string(resource), resendInterval, aggregationDelay, func() {
				d.reportGlobalData(resource)
			})
			if resource == k8sobjects.KindServices {
				d.startWatchTask(k8sobjects.KindServices)
			}
		case k8sobjects.KindComponents, k8sobjects.KindPVCs:
			resource := resource
			d.runEvery("relist-"+string(resource), resendInterval, 0, func() {
				d.relistData(resource)
			})
		default:
			d.startWatchTask(resource)
		}
	}
}

func (d *Daemon) startDiscoveryTasks() {
	interval := time.Duration(d.cfg.Intervals.Discovery) * time.Second
	delay := time.Duration(d.cfg.Intervals.DiscoveryDelay) * time.Second

	for _, resource := range d.resources {
		if resource == k8sobjects.KindContainers {
			// containers are discovered through the pods pipeline
			continue
		}
		resource := resource
		d.runEvery("discovery-"+string(resource), interval, delay, func() {
			d.updateDiscovery(resource)
		})
	}
}

func (d *Daemon) startResendTasks() {
	interval := time.Duration(d.cfg.Intervals.DataResend) * time.Second
	delay := time.Duration(d.cfg.Intervals.DataResendDelay) * time.Second

	for _, resource := range d.resources {
		resource := resource
		d.runEvery("resend-"+string(resource), interval, delay, func() {
			d.resendData(resource)
		})
	}
}

func (d *Daemon) startHeartbeat() {
	if !d.active(k8sobjects.KindNodes) {
		// only send the api heartbeat once per cluster
		return
	}
	d.heartbeat = cron.New()
	_, err := d.heartbeat.AddFunc(fmt.Sprintf("@every %ds", d.cfg.Intervals.APIZabbixInterval), d.sendHeartbeat)
	if err != nil {
		logrus.Errorf("failed to schedule heartbeat: %v", err)
		return
	}
	d.heartbeat.Start()
}

// Stop cancels every task and waits up to the join timeout; the
// process exits regardless afterwards.
func (d *Daemon) Stop(timeout time.Duration) {
	d.cancel()
	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logrus.Info("all tasks exited")
	case <-time.After(timeout):
		logrus.Warnf("tasks did not exit within %s, exiting anyway", timeout)
	}
}

// runEvery runs fn after an optional startup delay and then on every
// interval tick until the daemon stops.
func (d *Daemon) runEvery(name string, interval, delay time.Duration, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logrus.Infof("[start task] %s (interval %s, delay %s)", name, interval, delay)
		if delay > 0 && !d.sleep(delay) {
			return
		}
		for {
			fn()
			if !d.sleep(interval) {
				return
			}
		}
	}()
}

func (d *Daemon) sleep(duration time.Duration) bool {
	select {
	case <-d.ctx.Done():
		return false
	case <-time.After(duration):
		return true
	}
}

func (d *Daemon) startWatchTask(resource k8sobjects.Kind) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchLoop(resource)
	}()
}

// watchLoop keeps one streaming watch open per kind: reopen on normal
// server-side timeout, back off and restart on transient errors.
func (d *Daemon) watchLoop(resource k8sobjects.Kind) {
	logrus.Infof("watching resource >>>%s<<< with a stream duration of %ds", resource, d.cfg.Kubernetes.StreamTimeoutSeconds)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		w, err := d.client.Watch(d.ctx, resource)
		if err != nil {
			var transient *k8s.TransientUpstreamError
			if errors.As(err, &transient) {
				logrus.Errorf("watch %s: %v, restarting in %s", resource, err, backoff)
			} else {
				logrus.Errorf("watch %s: %v", resource, err)
			}
			watchRestarts.WithLabelValues(string(resource)).Inc()
			if !d.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		for event := range w.ResultChan() {
			if event.Type == watch.Error {
				logrus.Errorf("watch %s: error event %v, reopening stream", resource, event.Object)
				break
			}
			d.handleEvent(resource, event)
		}
		w.Stop()
		watchRestarts.WithLabelValues(string(resource)).Inc()
		logrus.Debugf("watch/fetch completed for resource >>>%s<<<, restarting", resource)
	}
}

// relistData covers kinds without a usable watch: fetch the full list
// and upsert every object. Ghost removal happens on the discovery
// task's reconcile.
func (d *Daemon) relistData(resource k8sobjects.Kind) {
	records, err := d.listProjected(resource)
	if err != nil {
		logrus.Errorf("relist %s: %v", resource, err)
		return
	}
	for _, rec := range records {
		_, _ = d.state.Upsert(rec)
	}
	storeObjects.WithLabelValues(string(resource)).Set(float64(d.state.Count(resource)))
}

// listProjected lists a kind and runs the projector over every raw
// object, dropping excluded namespaces and malformed objects.
func (d *Daemon) listProjected(resource k8sobjects.Kind) ([]*k8sobjects.Record, error) {
	res := k8sobjects.ForKind(resource)
	if res == nil {
		return nil, fmt.Errorf("no resource implementation for %s", resource)
	}

	raws, err := d.client.List(d.ctx, resource)
	if err != nil {
		return nil, err
	}

	records := make([]*k8sobjects.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := res.Project(raw, d.cfg)
		if err != nil {
			if errors.Is(err, k8sobjects.ErrNamespaceExcluded) {
				continue
			}
			logrus.Errorf("project %s: %v", resource, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// handleEvent is the dispatch path from the watch stream into the
// store and out through the sinks.
func (d *Daemon) handleEvent(resource k8sobjects.Kind, event watch.Event) {
	res := k8sobjects.ForKind(resource)
	if res == nil {
		logrus.Errorf("no resource implementation for %s", resource)
		return
	}

	switch event.Type {
	case watch.Added, watch.Modified:
		rec, err := res.Project(event.Object, d.cfg)
		if err != nil {
			if errors.Is(err, k8sobjects.ErrNamespaceExcluded) {
				logrus.Debugf("skip namespace-excluded %s event", resource)
				return
			}
			logrus.Errorf("%s [%s]: %v", event.Type, resource, err)
			return
		}
		logrus.Debugf("%s [%s]: %s/%s", event.Type, resource, rec.Namespace, rec.Name)

		_, stored := d.state.Upsert(rec)
		storeObjects.WithLabelValues(string(resource)).Set(float64(d.state.Count(resource)))
		if stored.DirtyZabbix || stored.DirtyWeb {
			d.sendObject(resource, stored, string(event.Type))
		}
	case watch.Deleted:
		rec, err := res.Project(event.Object, d.cfg)
		if err != nil {
			if !errors.Is(err, k8sobjects.ErrNamespaceExcluded) {
				logrus.Errorf("%s [%s]: %v", event.Type, resource, err)
			}
			return
		}
		removed := d.state.Delete(resource, rec.UID())
		storeObjects.WithLabelValues(string(resource)).Set(float64(d.state.Count(resource)))
		if removed != nil {
			d.deleteObject(resource, removed)
		}
	case watch.Bookmark:
		// resume tokens are not tracked; streams restart from scratch
	default:
		logrus.Infof("event type %q not implemented", event.Type)
	}
}
