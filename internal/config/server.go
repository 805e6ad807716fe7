package config

import (
	"errors"
	"time"
)

// Default HTTP server timings.
const (
	DefaultServerPort    = 8080
	DefaultReadTimeout   = 15 * time.Second
	DefaultWriteTimeout  = 15 * time.Second
	DefaultIdleTimeout   = 60 * time.Second
	DefaultRateLimitRPS  = 5.0
	DefaultRateLimitBurst = 10
	DefaultReportsDir    = "reports"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ReportsDir     string        `yaml:"reports_dir"`
}

func (c *ServerConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = DefaultServerPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = DefaultRateLimitRPS
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = DefaultRateLimitBurst
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.ReportsDir == "" {
		c.ReportsDir = DefaultReportsDir
	}
}

// Validate checks the server configuration for obvious misconfiguration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("server: port must be between 1 and 65535")
	}
	if c.RateLimitRPS <= 0 {
		return errors.New("server: rate_limit_rps must be positive")
	}
	return nil
}

// Default Job Store path.
const DefaultDatabasePath = "data/alephauto.db"

// DatabaseConfig holds Job Store connection settings.
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (c *DatabaseConfig) setDefaults() {
	if c.Path == "" {
		c.Path = DefaultDatabasePath
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 1 // sqlite is single-writer; see internal/store
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 1
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 0 // unlimited
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Path == "" {
		return errors.New("database: path is required")
	}
	return nil
}

// Scheduler defaults.
const (
	DefaultConcurrency     = 5
	DefaultMaxAttempts     = 2
	HardMaxAttempts        = 5
	DefaultBaseBackoff     = 1 * time.Second
	DefaultMaxBackoff      = 60 * time.Second
	DefaultBackoffFactor   = 2.0
	DefaultCancelGraceMS   = 5000
	DefaultBaseTimeoutSecs = 60
)

// SchedulerConfig holds scheduler/admission-control settings.
type SchedulerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PerPipelineMax  int           `yaml:"per_pipeline_max"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseBackoff     time.Duration `yaml:"base_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	BackoffFactor   float64       `yaml:"backoff_factor"`
	CancelGraceMS   int           `yaml:"cancel_grace_ms"`
	BaseTimeoutSecs int           `yaml:"base_timeout_secs"`
}

func (c *SchedulerConfig) setDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PerPipelineMax == 0 {
		c.PerPipelineMax = c.Concurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.CancelGraceMS == 0 {
		c.CancelGraceMS = DefaultCancelGraceMS
	}
	if c.BaseTimeoutSecs == 0 {
		c.BaseTimeoutSecs = DefaultBaseTimeoutSecs
	}
}

// Validate enforces the hard attempt cap.
func (c *SchedulerConfig) Validate() error {
	if c.Concurrency <= 0 {
		return errors.New("scheduler: concurrency must be positive")
	}
	if c.MaxAttempts > HardMaxAttempts {
		return errors.New("scheduler: max_attempts cannot exceed the hard cap of 5")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("scheduler: max_attempts must be positive")
	}
	return nil
}

// Push broadcaster defaults.
const (
	DefaultBatchWindowMS    = 500
	DefaultSubQueueCap      = 256
	DefaultIdleDisconnectMS = 30000
)

// PushConfig holds push-broadcaster settings.
type PushConfig struct {
	BatchWindowMS    int `yaml:"batch_window_ms"`
	SubQueueCap      int `yaml:"sub_queue_cap"`
	IdleDisconnectMS int `yaml:"idle_disconnect_ms"`
}

func (c *PushConfig) setDefaults() {
	if c.BatchWindowMS == 0 {
		c.BatchWindowMS = DefaultBatchWindowMS
	}
	if c.SubQueueCap == 0 {
		c.SubQueueCap = DefaultSubQueueCap
	}
	if c.IdleDisconnectMS == 0 {
		c.IdleDisconnectMS = DefaultIdleDisconnectMS
	}
}

// Validate checks the push configuration.
func (c *PushConfig) Validate() error {
	if c.SubQueueCap <= 0 {
		return errors.New("push: sub_queue_cap must be positive")
	}
	return nil
}

// RedisConfig holds the optional scan-result cache backend settings.
// A zero-value Host disables the cache.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis cache backend is configured.
func (c *RedisConfig) Enabled() bool { return c.Host != "" }

func (c *RedisConfig) Addr() string {
	if c.Port == "" {
		return c.Host + ":6379"
	}
	return c.Host + ":" + c.Port
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}
