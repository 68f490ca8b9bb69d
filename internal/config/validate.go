package config

import "fmt"

var validProfiles = map[string]bool{
	"auto": true, "base": true, "web": true, "data": true,
	"scraping": true, "ml": true, "qa": true,
}

// Validate rejects configurations Normalize could not repair.
func Validate(cfg *Config) error {
	switch cfg.Exec.Runtime {
	case "host", "container":
	default:
		return fmt.Errorf("exec.runtime must be host or container, got %q", cfg.Exec.Runtime)
	}

	c := cfg.Exec.Container
	switch c.Lifecycle {
	case "per_action", "per_run":
	default:
		return fmt.Errorf("exec.container.lifecycle must be per_action or per_run, got %q", c.Lifecycle)
	}
	if !validProfiles[c.ImageProfile] {
		return fmt.Errorf("exec.container.image_profile %q is not one of auto|base|web|data|scraping|ml|qa", c.ImageProfile)
	}
	switch c.Network {
	case "none", "bridge":
	default:
		return fmt.Errorf("exec.container.network must be none or bridge, got %q", c.Network)
	}

	switch cfg.Progress.CapabilityReset {
	case "strict", "lenient":
	default:
		return fmt.Errorf("progress.capability_reset must be strict or lenient, got %q", cfg.Progress.CapabilityReset)
	}
	return nil
}
