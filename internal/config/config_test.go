package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
kubernetes:
  k8s_config_type: token
  k8s_api_host: https://k8s.example:6443
  k8s_api_token: secret
  verify_ssl: false
  namespace_exclude_re: "kube-.*"
  container_crawling: container
intervals:
  discovery_interval: 600
  data_resend_interval: 90
  rate_limit_seconds: 15
zabbix:
  zabbix_server: zabbix.example:10051
  zabbix_host: k8s-prod
  zabbix_resources_exclude:
    - secrets
web_api:
  web_api_enable: true
  web_api_host: https://inventory.example
  web_api_cluster: prod
status:
  status_port: 8089
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, AccessToken, cfg.Kubernetes.ConfigType)
	assert.Equal(t, "https://k8s.example:6443", cfg.Kubernetes.APIHost)
	assert.False(t, cfg.Kubernetes.VerifySSL)
	assert.Equal(t, "container", cfg.Kubernetes.ContainerCrawling)
	assert.Equal(t, 600, cfg.Intervals.Discovery)
	assert.Equal(t, 90, cfg.Intervals.DataResend)
	assert.Equal(t, 15, cfg.Intervals.RateLimitSeconds)
	assert.Equal(t, "k8s-prod", cfg.Zabbix.Host)
	assert.Equal(t, []string{"secrets"}, cfg.Zabbix.ResourcesExclude)
	assert.True(t, cfg.WebAPI.Enable)
	assert.Equal(t, "prod", cfg.WebAPI.Cluster)
	assert.Equal(t, 8089, cfg.Status.Port)
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("ZABBIX_HOST", "from-env")

	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Zabbix.Host)
}

func TestDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	assert.Equal(t, AccessInCluster, cfg.Kubernetes.ConfigType)
	assert.Equal(t, 240, cfg.Kubernetes.StreamTimeoutSeconds)
	assert.Equal(t, 15, cfg.Kubernetes.RequestTimeoutSeconds)
	assert.Equal(t, "pod", cfg.Kubernetes.ContainerCrawling)
	assert.Equal(t, 30, cfg.Intervals.RateLimitSeconds)
	assert.Equal(t, 60, cfg.Intervals.APIZabbixInterval)
}

func TestValidateUnknownConfigType(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Zabbix.Host = "h"
	cfg.Kubernetes.ConfigType = "magic"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not implemented")
}

func TestValidateTokenRequiresHostAndToken(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Zabbix.Host = "h"
	cfg.Kubernetes.ConfigType = AccessToken

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k8s_api_host")
}

func TestValidateBadRegex(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Zabbix.Host = "h"
	cfg.Kubernetes.NamespaceExcludeRe = "["

	assert.Error(t, cfg.Validate())
}

func TestNamespaceExcluded(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Zabbix.Host = "h"
	cfg.Kubernetes.NamespaceExcludeRe = "kube-.*"
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.NamespaceExcluded("kube-system"))
	assert.True(t, cfg.NamespaceExcluded("kube-public"))
	assert.False(t, cfg.NamespaceExcluded("default"))
	// the pattern matches from the beginning of the name
	assert.False(t, cfg.NamespaceExcluded("my-kube-apps"))
	assert.False(t, cfg.NamespaceExcluded(""))
}

func TestNamespaceExcludedWithoutPattern(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Zabbix.Host = "h"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.NamespaceExcluded("kube-system"))
}
