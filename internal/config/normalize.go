package config

import (
	"strings"
	"time"
)

// Default returns the built-in configuration used when no config file exists.
func Default() Config {
	cfg := Config{}
	Normalize(&cfg)
	return cfg
}

// Normalize fills defaults and clamps thresholds in place. It never fails;
// anything it cannot repair is left for Validate to reject.
func Normalize(cfg *Config) {
	if strings.TrimSpace(cfg.Workspace) == "" {
		cfg.Workspace = "workspace"
	}
	if strings.TrimSpace(cfg.RunsDir) == "" {
		cfg.RunsDir = "runs"
	}
	if cfg.MaxIters <= 0 {
		cfg.MaxIters = 10
	}
	if cfg.MaxWallTime <= 0 {
		cfg.MaxWallTime = Duration(15 * time.Minute)
	}
	if cfg.Planner.Retries <= 0 {
		cfg.Planner.Retries = 2
	}

	normalizeExec(&cfg.Exec)
	normalizeProgress(&cfg.Progress)

	if strings.TrimSpace(cfg.Index.Path) == "" {
		cfg.Index.Path = ".otto/index.db"
	}
}

func normalizeExec(exec *ExecConfig) {
	exec.Runtime = strings.ToLower(strings.TrimSpace(exec.Runtime))
	if exec.Runtime == "" {
		exec.Runtime = "host"
	}
	if exec.Timeout <= 0 {
		exec.Timeout = Duration(30 * time.Second)
	}
	if exec.MaxOutputChars <= 0 {
		exec.MaxOutputChars = 12000
	}
	if len(exec.SafeCommands) == 0 {
		exec.SafeCommands = []string{"ls", "pwd", "cat", "echo", "python", "pytest", "rm"}
	}

	c := &exec.Container
	c.Lifecycle = strings.ToLower(strings.TrimSpace(c.Lifecycle))
	if c.Lifecycle == "" {
		c.Lifecycle = "per_action"
	}
	c.ImageProfile = strings.ToLower(strings.TrimSpace(c.ImageProfile))
	if c.ImageProfile == "" {
		c.ImageProfile = "auto"
	}
	if strings.TrimSpace(c.Images.Base) == "" {
		c.Images.Base = "python:3.11-slim"
	}
	fillImage(&c.Images.Web, c.Images.Base)
	fillImage(&c.Images.Data, c.Images.Base)
	fillImage(&c.Images.Scraping, c.Images.Base)
	fillImage(&c.Images.ML, c.Images.Base)
	fillImage(&c.Images.QA, c.Images.Base)
	if strings.TrimSpace(c.Network) == "" {
		c.Network = "none"
	}
	if c.CPUs <= 0 {
		c.CPUs = 1.0
	}
	if strings.TrimSpace(c.Memory) == "" {
		c.Memory = "512m"
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 256
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		c.CacheDir = ".otto/container-cache"
	}
	if c.RunVenv == nil {
		c.RunVenv = boolPtr(true)
	}
	if c.AutoInstall.Enabled == nil {
		c.AutoInstall.Enabled = boolPtr(true)
	}
	if c.AutoInstall.MaxModules <= 0 {
		c.AutoInstall.MaxModules = 6
	}
}

func normalizeProgress(p *ProgressConfig) {
	p.RepeatThreshold = clampThreshold(p.RepeatThreshold, 3)
	p.ParseErrorThreshold = clampThreshold(p.ParseErrorThreshold, 3)
	p.CapabilityFailureThreshold = clampThreshold(p.CapabilityFailureThreshold, 4)
	p.StagnationThreshold = clampThreshold(p.StagnationThreshold, 3)
	p.CapabilityReset = strings.ToLower(strings.TrimSpace(p.CapabilityReset))
	if p.CapabilityReset == "" {
		p.CapabilityReset = "strict"
	}
}

// clampThreshold applies the default for unset values and a floor of 2 so a
// single occurrence can never count as a streak.
func clampThreshold(value, fallback int) int {
	if value == 0 {
		value = fallback
	}
	if value < 2 {
		return 2
	}
	return value
}

func boolPtr(value bool) *bool {
	return &value
}

func fillImage(image *string, base string) {
	if strings.TrimSpace(*image) == "" {
		*image = base
	}
}
