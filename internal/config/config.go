// Package config loads and validates AlephAuto's configuration from an
// optional YAML file, environment variable overrides, and built-in
// defaults, via a viper-plus-yaml layering.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully assembled application configuration.
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Push        PushConfig      `yaml:"push"`
	Redis       RedisConfig     `yaml:"redis"`
	Logging     LoggingConfig   `yaml:"logging"`
	Worker      WorkerConfig    `yaml:"worker"`
	Pipelines   []PipelineConfig `yaml:"pipelines"`
	CronSchedules map[string]string `yaml:"cron_schedules"`
}

func setDefaults(c *Config) {
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Server.setDefaults()
	c.Database.setDefaults()
	c.Scheduler.setDefaults()
	c.Push.setDefaults()
	c.Worker.setDefaults()
	if len(c.Pipelines) == 0 {
		c.Pipelines = defaultPipelines()
	}
	if c.CronSchedules == nil {
		c.CronSchedules = map[string]string{}
	}
	for _, p := range c.Pipelines {
		if p.Cron != "" {
			c.CronSchedules[p.ID] = p.Cron
		}
	}
}

// overrideWithEnvVars applies recognized environment variables on top of
// whatever the YAML file or defaults produced.
func overrideWithEnvVars(c *Config) {
	if v := os.Getenv("JOBS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	} else if v := os.Getenv("NODE_ENV"); v != "" {
		c.Environment = v
	}
	c.Logging.Debug = c.Environment == "development"

	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("REPORTS_DIR"); v != "" {
		c.Server.ReportsDir = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PYTHON_INTERPRETER"); v != "" {
		c.Worker.InterpreterOverride = v
	}
	if v := os.Getenv("PYTHON_VENV_PATH"); v != "" {
		c.Worker.VenvPath = v
	}
	if v := os.Getenv("PIPELINE_SCRIPTS_DIR"); v != "" {
		c.Worker.ScriptsDir = v
	}

	// *_CRON_SCHEDULE — any env var matching this suffix registers an
	// auto-trigger cron expression for the pipeline named by its prefix,
	// e.g. DUPLICATE_DETECTION_CRON_SCHEDULE=@hourly.
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		const suffix = "_CRON_SCHEDULE"
		if strings.HasSuffix(parts[0], suffix) && parts[1] != "" {
			pipelineID := strings.ToLower(strings.TrimSuffix(parts[0], suffix))
			pipelineID = strings.ReplaceAll(pipelineID, "_", "-")
			c.CronSchedules[pipelineID] = parts[1]
		}
	}
}

// Validate runs every sub-config's Validate method.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Push.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads an optional YAML config file at path (ignored if empty or
// missing), applies environment variable overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("config: unmarshalling %s: %w", path, err)
			}
		}
	}

	setDefaults(cfg)
	overrideWithEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
