package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"otto/internal/config"
	"otto/internal/engine"
	"otto/internal/events"
	"otto/internal/index"
	"otto/internal/planner"
	"otto/internal/store"
)

const defaultConfigPath = "otto.yml"

// loadConfig loads the config file. The built-in defaults apply when the
// default path does not exist; an explicit path must exist.
func loadConfig(path string) (config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// loadPlans reads a planner transcript: one raw planner response per line.
// An empty path yields a provider with no responses.
func loadPlans(path string) (*planner.ScriptedProvider, error) {
	if path == "" {
		return planner.NewScriptedProvider(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plans: %w", err)
	}
	defer file.Close()

	var responses []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		responses = append(responses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return planner.NewScriptedProvider(responses...), nil
}

// buildEngine wires the store, broker, index, and engine from config. The
// returned cleanup closes the index.
func buildEngine(cfg config.Config, provider planner.Provider) (*engine.Engine, func(), error) {
	st, err := store.NewFS(cfg.RunsDir)
	if err != nil {
		return nil, nil, err
	}
	ix, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, nil, err
	}
	broker := events.NewBroker(0, nil)
	eng := engine.New(cfg, st, broker, provider, engine.Options{Index: ix})
	cleanup := func() { _ = ix.Close() }
	return eng, cleanup, nil
}
