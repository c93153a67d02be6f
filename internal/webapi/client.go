package webapi

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client posts inventory updates for single cluster objects. Every
// payload is tagged with the configured cluster name so one inventory
// endpoint can serve many daemons.
type Client struct {
	baseURL    string
	token      string
	cluster    string
	httpClient *http.Client
}

func NewClient(baseURL, token, cluster string, verifySSL bool) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifySSL},
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		cluster: cluster,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

// Send submits one object for a resource with an action verb, passed
// through as given. The daemon sends "ADDED" and "MODIFIED", and the
// lowercase "deleted" for watch-observed deletions.
func (c *Client) Send(resource string, payload map[string]string, action string) error {
	data := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["cluster"] = c.cluster

	body, err := json.Marshal(map[string]interface{}{
		"resource": resource,
		"data":     data,
		"action":   action,
	})
	if err != nil {
		return fmt.Errorf("marshal inventory payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/"+resource, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build inventory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post inventory %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("inventory %s returned %s", resource, resp.Status)
	}
	logrus.Debugf("inventory: %s %s for %s", action, payload["name"], resource)
	return nil
}
