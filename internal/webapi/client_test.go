package webapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "prod", true)
	err := client.Send("pods", map[string]string{"name": "p", "namespace": "n"}, "ADDED")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/pods", gotPath)
	assert.Equal(t, "Bearer token123", gotAuth)
	assert.Equal(t, "ADDED", gotBody["action"])

	data := gotBody["data"].(map[string]interface{})
	assert.Equal(t, "p", data["name"])
	assert.Equal(t, "prod", data["cluster"], "payload is tagged with the cluster name")
}

func TestSendDoesNotMutatePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "prod", true)
	payload := map[string]string{"name": "p"}
	require.NoError(t, client.Send("pods", payload, "MODIFIED"))
	assert.NotContains(t, payload, "cluster")
}

func TestSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "prod", true)
	err := client.Send("pods", map[string]string{"name": "p"}, "deleted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendConnectionRefused(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", "prod", true)
	assert.Error(t, client.Send("pods", map[string]string{"name": "p"}, "ADDED"))
}
