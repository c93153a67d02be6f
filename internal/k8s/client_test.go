package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
)

func testClient(t *testing.T, objects ...interface{}) *Client {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Zabbix.Host = "k8s-test"
	require.NoError(t, cfg.Validate())

	clientset := fake.NewSimpleClientset()
	for _, obj := range objects {
		switch o := obj.(type) {
		case *corev1.Pod:
			_, err := clientset.CoreV1().Pods(o.Namespace).Create(context.Background(), o, metav1.CreateOptions{})
			require.NoError(t, err)
		case *corev1.Node:
			_, err := clientset.CoreV1().Nodes().Create(context.Background(), o, metav1.CreateOptions{})
			require.NoError(t, err)
		}
	}
	return NewClient(clientset, cfg)
}

func TestListPods(t *testing.T) {
	client := testClient(t,
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "p1", Namespace: "n"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "p2", Namespace: "other"}},
	)

	objs, err := client.List(context.Background(), k8sobjects.KindPods)
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	pod, ok := objs[0].(*corev1.Pod)
	require.True(t, ok)
	assert.NotEmpty(t, pod.Name)
}

func TestListNodes(t *testing.T) {
	client := testClient(t, &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "w1"}})

	objs, err := client.List(context.Background(), k8sobjects.KindNodes)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	node, ok := objs[0].(*corev1.Node)
	require.True(t, ok)
	assert.Equal(t, "w1", node.Name)
}

func TestWatchPods(t *testing.T) {
	client := testClient(t)

	w, err := client.Watch(context.Background(), k8sobjects.KindPods)
	require.NoError(t, err)
	defer w.Stop()
	assert.NotNil(t, w.ResultChan())
}

func TestWatchUnwatchableKind(t *testing.T) {
	client := testClient(t)

	_, err := client.Watch(context.Background(), k8sobjects.KindComponents)
	assert.Error(t, err)

	_, err = client.Watch(context.Background(), k8sobjects.KindPVCs)
	assert.Error(t, err)
}

func TestBuildRestConfigToken(t *testing.T) {
	cfg := config.LoadFromEnv()
	cfg.Zabbix.Host = "k8s-test"
	cfg.Kubernetes.ConfigType = config.AccessToken
	cfg.Kubernetes.APIHost = "https://k8s.example:6443"
	cfg.Kubernetes.APIToken = "secret"
	cfg.Kubernetes.VerifySSL = false
	require.NoError(t, cfg.Validate())

	restCfg, err := BuildRestConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://k8s.example:6443", restCfg.Host)
	assert.Equal(t, "secret", restCfg.BearerToken)
	assert.True(t, restCfg.TLSClientConfig.Insecure)
}

func TestBuildRestConfigUnknownType(t *testing.T) {
	cfg := config.LoadFromEnv()
	cfg.Kubernetes.ConfigType = "magic"

	_, err := BuildRestConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
}
