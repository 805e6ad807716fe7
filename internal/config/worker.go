package config

import "time"

// Default interpreter discovery settings.
const (
	DefaultSystemInterpreter = "python3"
	DefaultScriptsDir        = "pipelines"
)

// WorkerConfig controls how the Worker Runtime resolves and invokes
// subprocess workers.
type WorkerConfig struct {
	InterpreterOverride string `yaml:"interpreter_override"`
	VenvPath            string `yaml:"venv_path"`
	SystemInterpreter   string `yaml:"system_interpreter"`
	ScriptsDir          string `yaml:"scripts_dir"`
}

func (c *WorkerConfig) setDefaults() {
	if c.SystemInterpreter == "" {
		c.SystemInterpreter = DefaultSystemInterpreter
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = DefaultScriptsDir
	}
}

// PipelineConfig registers one pipeline's subprocess worker.
type PipelineConfig struct {
	ID         string `yaml:"id"`
	HumanName  string `yaml:"human_name"`
	Script     string `yaml:"script"`
	Cron       string `yaml:"cron"`
	WorkloadMS int    `yaml:"workload_extension_ms"`
}

// defaultPipelines registers AlephAuto's built-in pipelines. Only their
// id/name/script wiring lives here; each pipeline's actual algorithm is
// its own subprocess script.
func defaultPipelines() []PipelineConfig {
	return []PipelineConfig{
		{ID: "duplicate-detection", HumanName: "Duplicate Detection", Script: "duplicate_detection.py"},
		{ID: "schema-enhancement", HumanName: "Schema Enhancement", Script: "schema_enhancement.py"},
		{ID: "git-activity", HumanName: "Git Activity Report", Script: "git_activity.py"},
		{ID: "cleanup", HumanName: "Workspace Cleanup", Script: "cleanup.py"},
	}
}

// BaseTimeout returns the scheduler's base per-attempt timeout as a
// time.Duration.
func (c *SchedulerConfig) BaseTimeout() time.Duration {
	return time.Duration(c.BaseTimeoutSecs) * time.Second
}
