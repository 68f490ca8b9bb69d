package progress

import (
	"regexp"
	"sort"
	"strings"

	"otto/internal/run"
)

var (
	missingModuleRx = regexp.MustCompile(`no module named ['"]?([a-z0-9_.\-]+)['"]?`)
	missingBinaryRx = regexp.MustCompile(`no such file or directory: ['"]?([a-z0-9_.\-]+)['"]?`)
	notAllowedRx    = regexp.MustCompile(`command is not allowlisted: ([a-z0-9_.\-]+)`)
)

// Fingerprint reduces an iteration's failures to a stable capability-failure
// signature. Classified failures (policy denials, missing modules/binaries)
// produce named signals; anything else contributes a clipped raw prefix so
// "lenient" reset policies can distinguish classified from noise.
func Fingerprint(results []run.ActionResult) string {
	var signals []string
	for _, result := range results {
		if result.OK {
			continue
		}
		blob := strings.ToLower(strings.TrimSpace(result.Error + "\n" + result.Output))
		if blob == "" {
			continue
		}

		matched := false
		switch result.Class {
		case run.FailureBlockedCommand, run.FailurePathEscape, run.FailureDenied:
			signals = append(signals, string(result.Class)+":"+result.Name)
			matched = true
		}
		if m := missingModuleRx.FindStringSubmatch(blob); m != nil {
			signals = append(signals, "missing_module:"+m[1])
			matched = true
		}
		if m := missingBinaryRx.FindStringSubmatch(blob); m != nil {
			signals = append(signals, "missing_binary:"+m[1])
			matched = true
		}
		if m := notAllowedRx.FindStringSubmatch(blob); m != nil {
			signals = append(signals, "blocked_command:"+m[1])
			matched = true
		}
		if !matched {
			signals = append(signals, "raw:"+clip(blob, 120))
		}
	}
	if len(signals) == 0 {
		return ""
	}
	uniq := dedupSorted(signals)
	return strings.Join(uniq, ",")
}

// Classified reports whether a fingerprint carries at least one named
// capability signal, as opposed to only raw failure prefixes.
func Classified(fingerprint string) bool {
	for _, signal := range strings.Split(fingerprint, ",") {
		if signal != "" && !strings.HasPrefix(signal, "raw:") {
			return true
		}
	}
	return false
}

func dedupSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	uniq := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		uniq = append(uniq, value)
	}
	sort.Strings(uniq)
	return uniq
}
