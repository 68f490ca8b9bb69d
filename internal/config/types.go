// Package config loads the otto.yml configuration. Parsing is strict, then
// Normalize fills defaults and Validate rejects what cannot be repaired. The
// resulting Config is treated as immutable by everything downstream.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a yaml duration that accepts either a Go duration string
// ("30s", "15m") or a bare integer number of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("duration must be a string or integer seconds: %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full configuration surface.
type Config struct {
	Workspace   string         `yaml:"workspace"`
	RunsDir     string         `yaml:"runs_dir"`
	MaxIters    int            `yaml:"max_iters"`
	MaxWallTime Duration       `yaml:"max_wall_time"`
	Planner     PlannerConfig  `yaml:"planner"`
	Exec        ExecConfig     `yaml:"exec"`
	Progress    ProgressConfig `yaml:"progress"`
	Index       IndexConfig    `yaml:"index"`
}

// PlannerConfig bounds the planning round.
type PlannerConfig struct {
	Retries int `yaml:"retries"`
}

// ExecConfig selects and bounds the execution runtime.
type ExecConfig struct {
	Runtime        string          `yaml:"runtime"`
	Timeout        Duration        `yaml:"timeout"`
	MaxOutputChars int             `yaml:"max_output_chars"`
	SafeCommands   []string        `yaml:"safe_commands"`
	Container      ContainerConfig `yaml:"container"`
}

// ContainerConfig shapes container sessions. RunVenv and AutoInstall.Enabled
// are pointers so an absent key defaults to true.
type ContainerConfig struct {
	Lifecycle    string            `yaml:"lifecycle"`
	ImageProfile string            `yaml:"image_profile"`
	Images       ImageSet          `yaml:"images"`
	Network      string            `yaml:"network"`
	CPUs         float64           `yaml:"cpus"`
	Memory       string            `yaml:"memory"`
	PidsLimit    int               `yaml:"pids_limit"`
	CacheDir     string            `yaml:"cache_dir"`
	RunVenv      *bool             `yaml:"run_venv"`
	Env          map[string]string `yaml:"env"`
	AutoInstall  AutoInstallConfig `yaml:"auto_install"`
}

// ImageSet maps runtime profiles to container images. Unset entries fall
// back to Base during normalization.
type ImageSet struct {
	Base     string `yaml:"base"`
	Web      string `yaml:"web"`
	Data     string `yaml:"data"`
	Scraping string `yaml:"scraping"`
	ML       string `yaml:"ml"`
	QA       string `yaml:"qa"`
}

// AutoInstallConfig controls dependency auto-install on missing-module
// failures.
type AutoInstallConfig struct {
	Enabled    *bool `yaml:"enabled"`
	MaxModules int   `yaml:"max_modules"`
}

// ProgressConfig holds the progress monitor thresholds.
type ProgressConfig struct {
	RepeatThreshold            int    `yaml:"repeat_threshold"`
	ParseErrorThreshold        int    `yaml:"parse_error_threshold"`
	CapabilityFailureThreshold int    `yaml:"capability_failure_threshold"`
	CapabilityReset            string `yaml:"capability_reset"`
	StagnationThreshold        int    `yaml:"stagnation_threshold"`
}

// IndexConfig locates the analytical run index.
type IndexConfig struct {
	Path string `yaml:"path"`
}
