package authz

import (
	"strings"

	"github.com/mmcdole/repoauthz/pkg/config"
)

// pathRule is the result of collapsing one path-rule section against
// one identity set: the path it governs and the rights every matching
// entry ORed together.
type pathRule struct {
	path   string
	rights Rights
}

// filterRules walks every section of doc and returns the path rules
// that apply to repo and identities, in the document's natural order.
func filterRules(doc *config.Document, repo string, identities IdentitySet) []pathRule {
	var rules []pathRule
	doc.EnumerateSections(func(name string) bool {
		path, ok := pathRuleTarget(name, repo)
		if !ok {
			return true
		}

		var acc Rights
		matched := false
		doc.EnumerateEntries(name, func(key, value string) bool {
			inverted := strings.HasPrefix(key, "~")
			subject := key
			if inverted {
				subject = key[1:]
			}
			if identities.Contains(subject) != inverted {
				matched = true
				acc |= rightsFromValue(value)
			}
			return true
		})
		if matched {
			rules = append(rules, pathRule{path: path, rights: acc})
		}
		return true
	})
	return rules
}

// pathRuleTarget decides whether section name is a path rule relevant
// to repo, and if so returns the path part of its name. A section name
// with no ':' is a path rule for every repository; "repo:/path" only
// applies when repo matches repo_prefix exactly.
func pathRuleTarget(name, repo string) (path string, ok bool) {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		if name[:idx] != repo {
			return "", false
		}
		name = name[idx+1:]
	}
	if !strings.HasPrefix(name, "/") {
		return "", false
	}
	return name, true
}
