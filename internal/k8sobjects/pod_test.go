package k8sobjects

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Zabbix.Host = "k8s-test"
	require.NoError(t, cfg.Validate())
	return cfg
}

func testConfigWithExclude(t *testing.T, pattern string) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Zabbix.Host = "k8s-test"
	cfg.Kubernetes.NamespaceExcludeRe = pattern
	require.NoError(t, cfg.Validate())
	return cfg
}

func runningPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "n", UID: "u"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "c"}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:         "c",
				Ready:        true,
				RestartCount: 0,
				State:        corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
			}},
		},
	}
}

func TestPodProject(t *testing.T) {
	cfg := testConfig(t)

	rec, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "pods_n_p", rec.UID())
	assert.Equal(t, "true", rec.Payload["ready"])
	assert.Equal(t, "Running", rec.Payload["phase"])
	assert.True(t, rec.DirtyZabbix)
	assert.True(t, rec.DirtyWeb)
	assert.Equal(t, InitialDate, rec.Added)

	var containers map[string]int
	require.NoError(t, json.Unmarshal([]byte(rec.Payload["containers"]), &containers))
	assert.Equal(t, map[string]int{"c": 1}, containers)

	var podData ContainerStatus
	require.NoError(t, json.Unmarshal([]byte(rec.Payload["pod_data"]), &podData))
	assert.Equal(t, "OK", podData.Status)
	assert.Equal(t, 1, podData.Ready)
	assert.Equal(t, 0, podData.RestartCount)
}

func TestPodProjectSameBytesSameChecksum(t *testing.T) {
	cfg := testConfig(t)

	first, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)
	second, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Checksum, second.Checksum)
}

func TestPodProjectTerminated(t *testing.T) {
	cfg := testConfig(t)

	pod := runningPod()
	pod.Status.ContainerStatuses[0].Ready = false
	pod.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Terminated: &corev1.ContainerStateTerminated{Reason: "OOMKilled"},
	}

	rec, err := Pod{}.Project(pod, cfg)
	require.NoError(t, err)

	assert.Equal(t, "false", rec.Payload["ready"])

	var podData ContainerStatus
	require.NoError(t, json.Unmarshal([]byte(rec.Payload["pod_data"]), &podData))
	assert.Equal(t, "ERROR: Terminated", podData.Status)

	running, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, running.Checksum, rec.Checksum)
}

func TestPodProjectCompletedIsNotError(t *testing.T) {
	cfg := testConfig(t)

	pod := runningPod()
	pod.Status.Phase = corev1.PodSucceeded
	pod.Status.ContainerStatuses[0].Ready = false
	pod.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Terminated: &corev1.ContainerStateTerminated{Reason: "Completed"},
	}

	rec, err := Pod{}.Project(pod, cfg)
	require.NoError(t, err)

	var podData ContainerStatus
	require.NoError(t, json.Unmarshal([]byte(rec.Payload["pod_data"]), &podData))
	assert.Equal(t, "OK", podData.Status)
	assert.Equal(t, "true", rec.Payload["ready"])
}

func TestPodProjectImagePullBackOff(t *testing.T) {
	cfg := testConfig(t)

	pod := runningPod()
	pod.Status.Phase = corev1.PodPending
	pod.Status.ContainerStatuses[0].Ready = false
	pod.Status.ContainerStatuses[0].State = corev1.ContainerState{
		Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff"},
	}

	rec, err := Pod{}.Project(pod, cfg)
	require.NoError(t, err)

	var podData ContainerStatus
	require.NoError(t, json.Unmarshal([]byte(rec.Payload["pod_data"]), &podData))
	assert.Equal(t, "ERROR: ImagePullBackOff", podData.Status)
	assert.Equal(t, 1, podData.NotReady)
}

func TestPodNamespaceExcluded(t *testing.T) {
	cfg := testConfigWithExclude(t, "kube-.*")

	pod := runningPod()
	pod.Namespace = "kube-system"

	_, err := Pod{}.Project(pod, cfg)
	assert.ErrorIs(t, err, ErrNamespaceExcluded)
}

func TestPodMalformed(t *testing.T) {
	cfg := testConfig(t)

	pod := runningPod()
	pod.Name = ""
	_, err := Pod{}.Project(pod, cfg)
	assert.ErrorIs(t, err, ErrMalformedObject)

	pod = runningPod()
	pod.Namespace = ""
	_, err = Pod{}.Project(pod, cfg)
	assert.ErrorIs(t, err, ErrMalformedObject)
}

func TestPodBaseName(t *testing.T) {
	tests := []struct {
		name         string
		podName      string
		generateName string
		ownerKind    string
		expected     string
	}{
		{"job strips numeric suffix", "backup-123-abcde", "backup-123-", "Job", "backup"},
		{"replicaset strips hash suffix", "web-6d4cf56db6-xvpnk", "web-6d4cf56db6-", "ReplicaSet", "web"},
		{"statefulset strips trailing dash", "db-0", "db-", "StatefulSet", "db"},
		{"bare pod keeps name", "standalone", "", "", "standalone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pod := runningPod()
			pod.Name = tt.podName
			pod.GenerateName = tt.generateName
			if tt.ownerKind != "" {
				pod.OwnerReferences = []metav1.OwnerReference{{Kind: tt.ownerKind}}
			}
			assert.Equal(t, tt.expected, podBaseName(pod))
		})
	}
}

func TestPodDiscoveryData(t *testing.T) {
	cfg := testConfig(t)
	rec, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)

	items := Pod{}.DiscoveryData(rec, cfg)
	require.Len(t, items, 1)
	assert.Equal(t, "p", items[0]["{#NAME}"])
	assert.Equal(t, "n", items[0]["{#NAMESPACE}"])

	cfg.Kubernetes.ContainerCrawling = "container"
	items = Pod{}.DiscoveryData(rec, cfg)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0]["{#CONTAINER}"])
	assert.Equal(t, rec.BaseName, items[0]["{#NAME}"])
	assert.NotEmpty(t, items[0]["{#SLUG}"])
}

func TestPodZabbixMetrics(t *testing.T) {
	cfg := testConfig(t)
	rec, err := Pod{}.Project(runningPod(), cfg)
	require.NoError(t, err)

	metrics := Pod{}.ZabbixMetrics(rec, "k8s-test", cfg)
	require.Len(t, metrics, 4)
	assert.Equal(t, "check_kubernetesd[get,pods,n,p,restart_count]", metrics[0].Key)
	assert.Equal(t, "0", metrics[0].Value)
	assert.Equal(t, "check_kubernetesd[get,pods,n,p,status]", metrics[3].Key)
	assert.Equal(t, "OK", metrics[3].Value)

	cfg.Kubernetes.ContainerCrawling = "container"
	assert.Empty(t, Pod{}.ZabbixMetrics(rec, "k8s-test", cfg))
}
