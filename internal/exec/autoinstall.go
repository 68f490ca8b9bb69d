package exec

import (
	"regexp"
	"sort"
	"strings"
)

var moduleNotFoundRx = regexp.MustCompile(`(?i)no module named ['"]?([a-zA-Z0-9_.\-]+)['"]?`)

// missingModules extracts the distinct top-level module names a failed
// execution complained about, sorted for stable install order.
func missingModules(output string) []string {
	matches := moduleNotFoundRx.FindAllStringSubmatch(output, -1)
	seen := map[string]bool{}
	for _, match := range matches {
		module := strings.ToLower(match[1])
		// Installs target the top-level distribution name.
		if i := strings.IndexByte(module, '.'); i > 0 {
			module = module[:i]
		}
		if module != "" {
			seen[module] = true
		}
	}
	modules := make([]string, 0, len(seen))
	for module := range seen {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}
