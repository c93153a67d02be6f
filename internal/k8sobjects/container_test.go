package k8sobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func podRecord(name, namespace, baseName, containerStatus string) *Record {
	rec := newRecord(KindPods, namespace, name)
	rec.BaseName = baseName
	rec.Payload["container_status"] = containerStatus
	return rec
}

func TestAggregateContainersSums(t *testing.T) {
	pods := []*Record{
		podRecord("web-1", "n", "web", `{"app":{"restart_count":1,"ready":1,"not_ready":0,"status":"OK"}}`),
		podRecord("web-2", "n", "web", `{"app":{"restart_count":2,"ready":0,"not_ready":1,"status":"OK"}}`),
	}

	grouped := AggregateContainers(pods)
	require.Contains(t, grouped, "n")
	require.Contains(t, grouped["n"], "web")
	app := grouped["n"]["web"]["app"]
	require.NotNil(t, app)
	assert.Equal(t, 3, app.RestartCount)
	assert.Equal(t, 1, app.Ready)
	assert.Equal(t, 1, app.NotReady)
	assert.Equal(t, "OK", app.Status)
}

func TestAggregateContainersErrorWins(t *testing.T) {
	pods := []*Record{
		podRecord("web-1", "n", "web", `{"app":{"restart_count":0,"ready":1,"not_ready":0,"status":"OK"}}`),
		podRecord("web-2", "n", "web", `{"app":{"restart_count":0,"ready":0,"not_ready":1,"status":"ERROR: Terminated"}}`),
		podRecord("web-3", "n", "web", `{"app":{"restart_count":0,"ready":1,"not_ready":0,"status":"OK"}}`),
	}

	grouped := AggregateContainers(pods)
	app := grouped["n"]["web"]["app"]
	require.NotNil(t, app)
	// an ERROR status sticks even when a later pod reports OK
	assert.Equal(t, "ERROR: Terminated", app.Status)
	assert.Equal(t, 2, app.Ready)
}

func TestAggregateContainersSkipsMalformed(t *testing.T) {
	pods := []*Record{
		podRecord("web-1", "n", "web", `not json`),
		podRecord("web-2", "n", "web", `{"app":{"restart_count":5,"ready":1,"not_ready":0,"status":"OK"}}`),
	}

	grouped := AggregateContainers(pods)
	app := grouped["n"]["web"]["app"]
	require.NotNil(t, app)
	assert.Equal(t, 5, app.RestartCount)
}

func TestAggregateContainersSeparateBaseNames(t *testing.T) {
	pods := []*Record{
		podRecord("web-1", "n", "web", `{"app":{"restart_count":1,"ready":1,"not_ready":0,"status":"OK"}}`),
		podRecord("job-1", "n", "job", `{"app":{"restart_count":7,"ready":0,"not_ready":0,"status":"OK"}}`),
	}

	grouped := AggregateContainers(pods)
	assert.Equal(t, 1, grouped["n"]["web"]["app"].RestartCount)
	assert.Equal(t, 7, grouped["n"]["job"]["app"].RestartCount)
}

func TestContainerMetrics(t *testing.T) {
	status := &ContainerStatus{RestartCount: 3, Ready: 2, NotReady: 0, Status: "OK"}
	metrics := ContainerMetrics("k8s-test", "n", "web", "app", status)

	require.Len(t, metrics, 4)
	assert.Equal(t, "check_kubernetesd[get,containers,n,web,app,restart_count]", metrics[0].Key)
	assert.Equal(t, "3", metrics[0].Value)
	assert.Equal(t, "check_kubernetesd[get,containers,n,web,app,status]", metrics[3].Key)
	assert.Equal(t, "OK", metrics[3].Value)
}
