package config

import (
	"fmt"
	"os"
)

// scaffoldDoc is the commented starter config written by `otto init`.
const scaffoldDoc = `# otto configuration
workspace: workspace
runs_dir: runs
max_iters: 10
max_wall_time: 15m

planner:
  retries: 2

exec:
  runtime: host # host | container
  timeout: 30s
  max_output_chars: 12000
  safe_commands: [ls, pwd, cat, echo, python, pytest, rm]
  container:
    lifecycle: per_action # per_action | per_run
    image_profile: auto # auto|base|web|data|scraping|ml|qa
    images:
      base: python:3.11-slim
    network: none
    cpus: 1.0
    memory: 512m
    pids_limit: 256
    cache_dir: .otto/container-cache
    run_venv: true
    auto_install:
      enabled: true
      max_modules: 6

progress:
  repeat_threshold: 3
  parse_error_threshold: 3
  capability_failure_threshold: 4
  capability_reset: strict # strict | lenient
  stagnation_threshold: 3

index:
  path: .otto/index.db
`

// Scaffold writes the starter config to path. It refuses to overwrite an
// existing file.
func Scaffold(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(scaffoldDoc), 0o644)
}
