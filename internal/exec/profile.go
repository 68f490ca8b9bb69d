package exec

import (
	"strings"

	"otto/internal/config"
)

// profileRule matches task text tokens or skill name fragments to a runtime
// profile. Rules are ordered; the first match wins.
type profileRule struct {
	profile    string
	taskTokens []string
	skillFrags []string
}

// Ordered by precedence. Mail tasks resolve to the data image because the
// slim base lacks the mail client packages; data outranks web so "csv from a
// url" picks the data image.
var profileRules = []profileRule{
	{profile: "data", taskTokens: []string{"email", "e-mail", "mail", "resend"}, skillFrags: []string{"sendmail", "mail"}},
	{profile: "scraping", taskTokens: []string{"selenium", "playwright", "beautifulsoup", "scrape", "crawler"}, skillFrags: []string{"scrap", "crawl"}},
	{profile: "ml", taskTokens: []string{"pytorch", "tensorflow", "scikit", "sklearn", "xgboost", "train model"}, skillFrags: []string{"ml", "model"}},
	{profile: "qa", taskTokens: []string{"pytest", "unit test", "integration test", "coverage"}, skillFrags: []string{"test", "qa"}},
	{profile: "data", taskTokens: []string{"csv", "pandas", "numpy", "dataset", "dataframe"}, skillFrags: []string{"data"}},
	{profile: "web", taskTokens: []string{"http://", "https://", "url"}, skillFrags: []string{"web"}},
}

// SelectProfile resolves the runtime image profile. A concrete requested
// profile wins; auto scans the task text and skill names with fixed
// precedence and falls back to base.
func SelectProfile(requested, task string, skillNames []string) string {
	profile := strings.ToLower(strings.TrimSpace(requested))
	switch profile {
	case "base", "web", "data", "scraping", "ml", "qa":
		return profile
	}

	text := strings.ToLower(task)
	names := make([]string, len(skillNames))
	for i, name := range skillNames {
		names[i] = strings.ToLower(name)
	}
	for _, rule := range profileRules {
		if matchesRule(rule, text, names) {
			return rule.profile
		}
	}
	return "base"
}

func matchesRule(rule profileRule, text string, skillNames []string) bool {
	for _, token := range rule.taskTokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	for _, name := range skillNames {
		for _, frag := range rule.skillFrags {
			if strings.Contains(name, frag) {
				return true
			}
		}
	}
	return false
}

// ImageFor maps a resolved profile to its configured image.
func ImageFor(profile string, images config.ImageSet) string {
	switch profile {
	case "web":
		return images.Web
	case "data":
		return images.Data
	case "scraping":
		return images.Scraping
	case "ml":
		return images.ML
	case "qa":
		return images.QA
	default:
		return images.Base
	}
}
