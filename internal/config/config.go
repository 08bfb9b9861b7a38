// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Progress  ProgressConfig  `mapstructure:"progress"`
	Client    ClientConfig    `mapstructure:"client"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Hub       HubConfig       `mapstructure:"hub"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ProgressConfig tunes the reporters.
type ProgressConfig struct {
	Throttle      time.Duration `mapstructure:"throttle"`
	ServerName    string        `mapstructure:"server_name"`
	InitStepDelay time.Duration `mapstructure:"init_step_delay"`
}

// ClientConfig seeds the client preferences until the client initializes.
type ClientConfig struct {
	ProgressReportSupported   bool `mapstructure:"progress_report_supported"`
	WorkDoneProgressSupported bool `mapstructure:"work_done_progress_supported"`
}

// JobsConfig sizes the background job runner.
type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// HubConfig controls progress event batching for observability sinks.
type HubConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	LogEvents      bool          `mapstructure:"log_events"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// AdminConfig controls the HTTP admin server. JobRate limits job submissions
// per caller per second; zero disables the limit.
type AdminConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Port     int     `mapstructure:"port"`
	JobRate  float64 `mapstructure:"job_rate"`
	JobBurst int     `mapstructure:"job_burst"`
}

// AuthConfig defines admin API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("progress.throttle", "200ms")
	v.SetDefault("progress.server_name", "Language Server")
	v.SetDefault("progress.init_step_delay", "100ms")
	v.SetDefault("client.progress_report_supported", false)
	v.SetDefault("client.work_done_progress_supported", true)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("hub.enabled", true)
	v.SetDefault("hub.log_events", false)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait", "250ms")
	v.SetDefault("hub.sink_timeout", "5s")
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.port", 8081)
	v.SetDefault("admin.job_rate", 5.0)
	v.SetDefault("admin.job_burst", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("telemetry.service_name", "progressd")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Progress.Throttle < 0 {
		return errors.New("progress.throttle must be >= 0")
	}
	if c.Progress.InitStepDelay < 0 {
		return errors.New("progress.init_step_delay must be >= 0")
	}
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be > 0")
	}
	if c.Jobs.QueueDepth <= 0 {
		return errors.New("jobs.queue_depth must be > 0")
	}
	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("admin.port %d out of range", c.Admin.Port)
	}
	if c.Admin.JobRate < 0 {
		return errors.New("admin.job_rate must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	return nil
}
