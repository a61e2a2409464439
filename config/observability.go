package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "portal-api"

// ObservabilityConfig groups configuration that controls metrics and abuse alert fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls the /metrics endpoint and emission to StatsD.
type ObservabilityMetricsConfig struct {
	// Prometheus serves GET /metrics.
	Prometheus    bool   `env:"OBSERVABILITY_METRICS_PROMETHEUS"     envDefault:"true"`
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	StatsdPrefix  string `env:"OBSERVABILITY_METRICS_STATSD_PREFIX"  envDefault:"portal"`
	// StatsdTags is a comma-separated key:value list added to every metric.
	StatsdTags          map[string]string `env:"OBSERVABILITY_METRICS_STATSD_TAGS"           envDefault:"service:portal-api" envKeyValSeparator:":"`
	StatsdFlushInterval time.Duration     `env:"OBSERVABILITY_METRICS_STATSD_FLUSH_INTERVAL" envDefault:"1s"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.StatsdPrefix = strings.Trim(strings.TrimSpace(c.StatsdPrefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.StatsdFlushInterval <= 0 {
		c.StatsdFlushInterval = time.Second
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound abuse alerts.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`

	// AbuseThreshold violations by one client and class inside AbuseWindow raise an alert.
	AbuseThreshold int           `env:"OBSERVABILITY_NOTIFICATIONS_ABUSE_THRESHOLD" envDefault:"20"`
	AbuseWindow    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_ABUSE_WINDOW"    envDefault:"5m"`
	AbuseCooldown  time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_ABUSE_COOLDOWN"  envDefault:"30m"`

	Slack     SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.AbuseThreshold <= 0 {
		c.AbuseThreshold = 20
	}
	if c.AbuseWindow <= 0 {
		c.AbuseWindow = 5 * time.Minute
	}
	if c.AbuseCooldown <= 0 {
		c.AbuseCooldown = 30 * time.Minute
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"portal-api"`
	// MonitorURL links alerts to the monitoring endpoint; defaults from APP_BASE_URL.
	MonitorURL string `env:"MONITOR_URL"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.MonitorURL = strings.TrimSpace(c.MonitorURL)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"portal-api"`
	Component  string `env:"COMPONENT"   envDefault:"rate-limit"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "rate-limit"
	}
}
