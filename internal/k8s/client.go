package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
)

// TransientUpstreamError marks retryable cluster I/O failures. Watch
// loops restart after a short backoff when they see one.
type TransientUpstreamError struct {
	Op   string
	Kind k8sobjects.Kind
	Err  error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error {
	return e.Err
}

func transient(op string, kind k8sobjects.Kind, err error) error {
	return &TransientUpstreamError{Op: op, Kind: kind, Err: err}
}

// BuildRestConfig resolves cluster credentials for one of the three
// mutually exclusive access modes.
func BuildRestConfig(cfg *config.Config) (*rest.Config, error) {
	switch cfg.Kubernetes.ConfigType {
	case config.AccessInCluster:
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("load in-cluster config: %w", err)
		}
		return restCfg, nil
	case config.AccessKubeConfig:
		path := os.Getenv("KUBECONFIG")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve kubeconfig path: %w", err)
			}
			path = filepath.Join(home, ".kube", "config")
		}
		restCfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", path, err)
		}
		return restCfg, nil
	case config.AccessToken:
		return &rest.Config{
			Host:        cfg.Kubernetes.APIHost,
			BearerToken: cfg.Kubernetes.APIToken,
			TLSClientConfig: rest.TLSClientConfig{
				Insecure: !cfg.Kubernetes.VerifySSL,
			},
		}, nil
	default:
		return nil, fmt.Errorf("k8s_config_type = %q is not implemented", cfg.Kubernetes.ConfigType)
	}
}

// listPageSize keeps single list responses bounded on big clusters.
const listPageSize = 500

// Client is the narrow facade over the upstream API: a paged full
// list and a server-side-bounded streaming watch per resource kind.
type Client struct {
	clientset      kubernetes.Interface
	streamTimeout  int64
	requestTimeout time.Duration
}

// NewClient wraps a clientset with the configured timeouts. The
// clientset interface also admits the fake clientset in tests.
func NewClient(clientset kubernetes.Interface, cfg *config.Config) *Client {
	return &Client{
		clientset:      clientset,
		streamTimeout:  int64(cfg.Kubernetes.StreamTimeoutSeconds),
		requestTimeout: time.Duration(cfg.Kubernetes.RequestTimeoutSeconds) * time.Second,
	}
}

// NewClientFromRestConfig builds the real clientset and wraps it.
func NewClientFromRestConfig(restCfg *rest.Config, cfg *config.Config) (*Client, error) {
	restCfg.Timeout = time.Duration(cfg.Kubernetes.RequestTimeoutSeconds) * time.Second
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return NewClient(clientset, cfg), nil
}

// List returns every object of a kind across all namespaces, paging
// through the API server.
func (c *Client) List(ctx context.Context, kind k8sobjects.Kind) ([]runtime.Object, error) {
	var out []runtime.Object
	opts := metav1.ListOptions{Limit: listPageSize}

	for {
		pageCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		items, continueToken, err := c.listPage(pageCtx, kind, opts)
		cancel()
		if err != nil {
			return nil, transient("list", kind, err)
		}
		out = append(out, items...)
		if continueToken == "" {
			return out, nil
		}
		opts.Continue = continueToken
	}
}

func (c *Client) listPage(ctx context.Context, kind k8sobjects.Kind, opts metav1.ListOptions) ([]runtime.Object, string, error) {
	switch kind {
	case k8sobjects.KindNodes:
		list, err := c.clientset.CoreV1().Nodes().List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindComponents:
		list, err := c.clientset.CoreV1().ComponentStatuses().List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindServices:
		list, err := c.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindDeployments:
		list, err := c.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindStatefulSets:
		list, err := c.clientset.AppsV1().StatefulSets(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindDaemonSets:
		list, err := c.clientset.AppsV1().DaemonSets(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindPods:
		list, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindSecrets:
		list, err := c.clientset.CoreV1().Secrets(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindIngresses:
		list, err := c.clientset.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	case k8sobjects.KindPVCs:
		list, err := c.clientset.CoreV1().PersistentVolumeClaims(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return nil, "", err
		}
		items := make([]runtime.Object, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, &list.Items[i])
		}
		return items, list.Continue, nil
	default:
		return nil, "", fmt.Errorf("no list handling for resource %s", kind)
	}
}

// Watch opens a streaming watch with the configured server-side
// timeout. The stream is finite: the server closes it after the
// timeout and the caller is expected to reopen.
func (c *Client) Watch(ctx context.Context, kind k8sobjects.Kind) (watch.Interface, error) {
	if !kind.Capability().Watchable {
		return nil, fmt.Errorf("no watch handling for resource %s", kind)
	}

	opts := metav1.ListOptions{
		Watch:          true,
		TimeoutSeconds: &c.streamTimeout,
	}

	var (
		w   watch.Interface
		err error
	)
	switch kind {
	case k8sobjects.KindNodes:
		w, err = c.clientset.CoreV1().Nodes().Watch(ctx, opts)
	case k8sobjects.KindServices:
		w, err = c.clientset.CoreV1().Services(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindDeployments:
		w, err = c.clientset.AppsV1().Deployments(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindStatefulSets:
		w, err = c.clientset.AppsV1().StatefulSets(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindDaemonSets:
		w, err = c.clientset.AppsV1().DaemonSets(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindPods:
		w, err = c.clientset.CoreV1().Pods(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindSecrets:
		w, err = c.clientset.CoreV1().Secrets(metav1.NamespaceAll).Watch(ctx, opts)
	case k8sobjects.KindIngresses:
		w, err = c.clientset.NetworkingV1().Ingresses(metav1.NamespaceAll).Watch(ctx, opts)
	default:
		return nil, fmt.Errorf("no watch handling for resource %s", kind)
	}
	if err != nil {
		return nil, transient("watch", kind, err)
	}
	logrus.Debugf("opened watch stream for %s (server timeout %ds)", kind, c.streamTimeout)
	return w, nil
}
