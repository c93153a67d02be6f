package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClusterAccessType selects how cluster credentials are obtained.
type ClusterAccessType string

const (
	AccessInCluster  ClusterAccessType = "incluster"
	AccessKubeConfig ClusterAccessType = "kubeconfig"
	AccessToken      ClusterAccessType = "token"
)

// Config holds all daemon configuration.
type Config struct {
	Kubernetes KubernetesConfig
	Intervals  IntervalConfig
	Zabbix     ZabbixConfig
	WebAPI     WebAPIConfig
	Resources  ResourceConfig
	Status     StatusConfig
	Log        LogConfig

	// compiled form of Kubernetes.NamespaceExcludeRe, set by Validate
	namespaceExcludeRe *regexp.Regexp
}

// KubernetesConfig holds cluster access configuration.
type KubernetesConfig struct {
	ConfigType            ClusterAccessType
	APIHost               string
	APIToken              string
	VerifySSL             bool
	StreamTimeoutSeconds  int
	RequestTimeoutSeconds int
	NamespaceExcludeRe    string
	ContainerCrawling     string // "pod" or "container"
}

// IntervalConfig holds the scheduling knobs, all in seconds.
type IntervalConfig struct {
	Discovery         int
	DataResend        int
	DataRefresh       int
	DiscoveryDelay    int
	DataResendDelay   int
	RateLimitSeconds  int
	APIZabbixInterval int
}

// ZabbixConfig holds the metric sink configuration.
type ZabbixConfig struct {
	Server           string
	Host             string
	DryRun           bool
	Debug            bool
	SingleDebug      bool
	ResourcesExclude []string
}

// WebAPIConfig holds the inventory sink configuration.
type WebAPIConfig struct {
	Enable           bool
	Host             string
	Token            string
	Cluster          string
	VerifySSL        bool
	ResourcesExclude []string
}

// ResourceConfig selects which resource kinds run a pipeline at all.
type ResourceConfig struct {
	Exclude []string
}

// StatusConfig holds the local status server configuration.
type StatusConfig struct {
	Port int // 0 disables the status server
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// configFile is the YAML layout; env variables fill the gaps.
type configFile struct {
	Kubernetes struct {
		ConfigType            string `yaml:"k8s_config_type"`
		APIHost               string `yaml:"k8s_api_host"`
		APIToken              string `yaml:"k8s_api_token"`
		VerifySSL             *bool  `yaml:"verify_ssl"`
		StreamTimeoutSeconds  int    `yaml:"k8s_api_stream_timeout_seconds"`
		RequestTimeoutSeconds int    `yaml:"k8s_api_request_timeout_seconds"`
		NamespaceExcludeRe    string `yaml:"namespace_exclude_re"`
		ContainerCrawling     string `yaml:"container_crawling"`
	} `yaml:"kubernetes"`

	Intervals struct {
		Discovery         int `yaml:"discovery_interval"`
		DataResend        int `yaml:"data_resend_interval"`
		DataRefresh       int `yaml:"data_refresh_interval"`
		DiscoveryDelay    int `yaml:"discovery_interval_delay"`
		DataResendDelay   int `yaml:"data_resend_interval_delay"`
		RateLimitSeconds  int `yaml:"rate_limit_seconds"`
		APIZabbixInterval int `yaml:"api_zabbix_interval"`
	} `yaml:"intervals"`

	Zabbix struct {
		Server           string   `yaml:"zabbix_server"`
		Host             string   `yaml:"zabbix_host"`
		DryRun           bool     `yaml:"zabbix_dry_run"`
		Debug            bool     `yaml:"zabbix_debug"`
		SingleDebug      bool     `yaml:"zabbix_single_debug"`
		ResourcesExclude []string `yaml:"zabbix_resources_exclude"`
	} `yaml:"zabbix"`

	WebAPI struct {
		Enable           *bool    `yaml:"web_api_enable"`
		Host             string   `yaml:"web_api_host"`
		Token            string   `yaml:"web_api_token"`
		Cluster          string   `yaml:"web_api_cluster"`
		VerifySSL        *bool    `yaml:"web_api_verify_ssl"`
		ResourcesExclude []string `yaml:"web_api_resources_exclude"`
	} `yaml:"web_api"`

	Resources struct {
		Exclude []string `yaml:"resources_exclude"`
	} `yaml:"resources"`

	Status struct {
		Port int `yaml:"status_port"`
	} `yaml:"status"`

	Log struct {
		Level  string `yaml:"log_level"`
		Format string `yaml:"log_format"`
	} `yaml:"log"`
}

// LoadFromFile loads configuration from a YAML file, falling back to
// environment variables when the file is absent or a field is unset.
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return LoadFromEnv(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	cfg := &Config{
		Kubernetes: KubernetesConfig{
			ConfigType:            ClusterAccessType(getOrDefault(cf.Kubernetes.ConfigType, getEnv("K8S_CONFIG_TYPE", string(AccessInCluster)))),
			APIHost:               getOrDefault(cf.Kubernetes.APIHost, getEnv("K8S_API_HOST", "")),
			APIToken:              getOrDefault(cf.Kubernetes.APIToken, getEnv("K8S_API_TOKEN", "")),
			VerifySSL:             getBoolOrDefault(cf.Kubernetes.VerifySSL, getEnvAsBool("K8S_VERIFY_SSL", true)),
			StreamTimeoutSeconds:  getIntOrDefault(cf.Kubernetes.StreamTimeoutSeconds, getEnvAsInt("K8S_API_STREAM_TIMEOUT_SECONDS", 240)),
			RequestTimeoutSeconds: getIntOrDefault(cf.Kubernetes.RequestTimeoutSeconds, getEnvAsInt("K8S_API_REQUEST_TIMEOUT_SECONDS", 15)),
			NamespaceExcludeRe:    getOrDefault(cf.Kubernetes.NamespaceExcludeRe, getEnv("NAMESPACE_EXCLUDE_RE", "")),
			ContainerCrawling:     getOrDefault(cf.Kubernetes.ContainerCrawling, getEnv("CONTAINER_CRAWLING", "pod")),
		},
		Intervals: IntervalConfig{
			Discovery:         getIntOrDefault(cf.Intervals.Discovery, getEnvAsInt("DISCOVERY_INTERVAL", 900)),
			DataResend:        getIntOrDefault(cf.Intervals.DataResend, getEnvAsInt("DATA_RESEND_INTERVAL", 120)),
			DataRefresh:       getIntOrDefault(cf.Intervals.DataRefresh, getEnvAsInt("DATA_REFRESH_INTERVAL", 3600)),
			DiscoveryDelay:    getIntOrDefault(cf.Intervals.DiscoveryDelay, getEnvAsInt("DISCOVERY_INTERVAL_DELAY", 30)),
			DataResendDelay:   getIntOrDefault(cf.Intervals.DataResendDelay, getEnvAsInt("DATA_RESEND_INTERVAL_DELAY", 60)),
			RateLimitSeconds:  getIntOrDefault(cf.Intervals.RateLimitSeconds, getEnvAsInt("RATE_LIMIT_SECONDS", 30)),
			APIZabbixInterval: getIntOrDefault(cf.Intervals.APIZabbixInterval, getEnvAsInt("API_ZABBIX_INTERVAL", 60)),
		},
		Zabbix: ZabbixConfig{
			Server:           getOrDefault(cf.Zabbix.Server, getEnv("ZABBIX_SERVER", "localhost:10051")),
			Host:             getOrDefault(cf.Zabbix.Host, getEnv("ZABBIX_HOST", "")),
			DryRun:           cf.Zabbix.DryRun || getEnvAsBool("ZABBIX_DRY_RUN", false),
			Debug:            cf.Zabbix.Debug || getEnvAsBool("ZABBIX_DEBUG", false),
			SingleDebug:      cf.Zabbix.SingleDebug || getEnvAsBool("ZABBIX_SINGLE_DEBUG", false),
			ResourcesExclude: getListOrDefault(cf.Zabbix.ResourcesExclude, getEnvAsList("ZABBIX_RESOURCES_EXCLUDE")),
		},
		WebAPI: WebAPIConfig{
			Enable:           getBoolOrDefault(cf.WebAPI.Enable, getEnvAsBool("WEB_API_ENABLE", false)),
			Host:             getOrDefault(cf.WebAPI.Host, getEnv("WEB_API_HOST", "")),
			Token:            getOrDefault(cf.WebAPI.Token, getEnv("WEB_API_TOKEN", "")),
			Cluster:          getOrDefault(cf.WebAPI.Cluster, getEnv("WEB_API_CLUSTER", "")),
			VerifySSL:        getBoolOrDefault(cf.WebAPI.VerifySSL, getEnvAsBool("WEB_API_VERIFY_SSL", true)),
			ResourcesExclude: getListOrDefault(cf.WebAPI.ResourcesExclude, getEnvAsList("WEB_API_RESOURCES_EXCLUDE")),
		},
		Resources: ResourceConfig{
			Exclude: getListOrDefault(cf.Resources.Exclude, getEnvAsList("RESOURCES_EXCLUDE")),
		},
		Status: StatusConfig{
			Port: getIntOrDefault(cf.Status.Port, getEnvAsInt("STATUS_PORT", 0)),
		},
		Log: LogConfig{
			Level:  getOrDefault(cf.Log.Level, getEnv("LOG_LEVEL", "info")),
			Format: getOrDefault(cf.Log.Format, getEnv("LOG_FORMAT", "text")),
		},
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	return &Config{
		Kubernetes: KubernetesConfig{
			ConfigType:            ClusterAccessType(getEnv("K8S_CONFIG_TYPE", string(AccessInCluster))),
			APIHost:               getEnv("K8S_API_HOST", ""),
			APIToken:              getEnv("K8S_API_TOKEN", ""),
			VerifySSL:             getEnvAsBool("K8S_VERIFY_SSL", true),
			StreamTimeoutSeconds:  getEnvAsInt("K8S_API_STREAM_TIMEOUT_SECONDS", 240),
			RequestTimeoutSeconds: getEnvAsInt("K8S_API_REQUEST_TIMEOUT_SECONDS", 15),
			NamespaceExcludeRe:    getEnv("NAMESPACE_EXCLUDE_RE", ""),
			ContainerCrawling:     getEnv("CONTAINER_CRAWLING", "pod"),
		},
		Intervals: IntervalConfig{
			Discovery:         getEnvAsInt("DISCOVERY_INTERVAL", 900),
			DataResend:        getEnvAsInt("DATA_RESEND_INTERVAL", 120),
			DataRefresh:       getEnvAsInt("DATA_REFRESH_INTERVAL", 3600),
			DiscoveryDelay:    getEnvAsInt("DISCOVERY_INTERVAL_DELAY", 30),
			DataResendDelay:   getEnvAsInt("DATA_RESEND_INTERVAL_DELAY", 60),
			RateLimitSeconds:  getEnvAsInt("RATE_LIMIT_SECONDS", 30),
			APIZabbixInterval: getEnvAsInt("API_ZABBIX_INTERVAL", 60),
		},
		Zabbix: ZabbixConfig{
			Server:           getEnv("ZABBIX_SERVER", "localhost:10051"),
			Host:             getEnv("ZABBIX_HOST", ""),
			DryRun:           getEnvAsBool("ZABBIX_DRY_RUN", false),
			Debug:            getEnvAsBool("ZABBIX_DEBUG", false),
			SingleDebug:      getEnvAsBool("ZABBIX_SINGLE_DEBUG", false),
			ResourcesExclude: getEnvAsList("ZABBIX_RESOURCES_EXCLUDE"),
		},
		WebAPI: WebAPIConfig{
			Enable:           getEnvAsBool("WEB_API_ENABLE", false),
			Host:             getEnv("WEB_API_HOST", ""),
			Token:            getEnv("WEB_API_TOKEN", ""),
			Cluster:          getEnv("WEB_API_CLUSTER", ""),
			VerifySSL:        getEnvAsBool("WEB_API_VERIFY_SSL", true),
			ResourcesExclude: getEnvAsList("WEB_API_RESOURCES_EXCLUDE"),
		},
		Resources: ResourceConfig{
			Exclude: getEnvAsList("RESOURCES_EXCLUDE"),
		},
		Status: StatusConfig{
			Port: getEnvAsInt("STATUS_PORT", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the configuration and compiles derived fields.
// An unknown k8s_config_type is fatal for the caller.
func (c *Config) Validate() error {
	var errs []string

	switch c.Kubernetes.ConfigType {
	case AccessInCluster, AccessKubeConfig:
	case AccessToken:
		if c.Kubernetes.APIHost == "" || c.Kubernetes.APIToken == "" {
			errs = append(errs, "k8s_config_type=token requires k8s_api_host and k8s_api_token")
		}
	default:
		errs = append(errs, fmt.Sprintf("k8s_config_type = %q is not implemented", c.Kubernetes.ConfigType))
	}

	if c.Kubernetes.ContainerCrawling != "pod" && c.Kubernetes.ContainerCrawling != "container" {
		errs = append(errs, fmt.Sprintf("container_crawling = %q, want pod or container", c.Kubernetes.ContainerCrawling))
	}

	if c.Zabbix.Host == "" && !c.Zabbix.DryRun {
		errs = append(errs, "zabbix_host is not set")
	}

	if c.WebAPI.Enable && c.WebAPI.Host == "" {
		errs = append(errs, "web_api_enable requires web_api_host")
	}

	if c.Kubernetes.NamespaceExcludeRe != "" {
		re, err := regexp.Compile(c.Kubernetes.NamespaceExcludeRe)
		if err != nil {
			errs = append(errs, fmt.Sprintf("namespace_exclude_re: %v", err))
		} else {
			c.namespaceExcludeRe = re
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// NamespaceExcluded reports whether the namespace matches the
// configured exclusion pattern, anchored at the start of the name.
func (c *Config) NamespaceExcluded(namespace string) bool {
	if c.namespaceExcludeRe == nil || namespace == "" {
		return false
	}
	loc := c.namespaceExcludeRe.FindStringIndex(namespace)
	return loc != nil && loc[0] == 0
}

// RateLimit returns the per-record minimum inter-send interval.
func (c *Config) RateLimit() time.Duration {
	if c.Intervals.RateLimitSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Intervals.RateLimitSeconds) * time.Second
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getOrDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func getBoolOrDefault(value *bool, defaultValue bool) bool {
	if value != nil {
		return *value
	}
	return defaultValue
}

func getListOrDefault(value, defaultValue []string) []string {
	if len(value) > 0 {
		return value
	}
	return defaultValue
}
