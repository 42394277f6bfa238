package authz

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mmcdole/repoauthz/pkg/config"
)

// Validate performs the static checks described for the rules
// document: every group and alias reference must resolve, group
// membership must be acyclic, every path-rule section name must be a
// canonical fspath, and every rule's subject and value must be
// well-formed. It reports the first error found; validation does not
// prove rules are semantically useful, only that they are structurally
// referable.
func Validate(doc *config.Document) error {
	var firstErr error
	doc.EnumerateSections(func(name string) bool {
		var err error
		switch name {
		case "groups":
			err = validateGroups(doc)
		case "aliases":
			err = validateAliases(doc)
		default:
			err = validatePathRuleSection(doc, name)
		}
		if err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

func validateGroups(doc *config.Document) error {
	var err error
	doc.EnumerateEntries("groups", func(group, _ string) bool {
		err = walkGroup(doc, group, map[string]bool{})
		return err == nil
	})
	return err
}

// walkGroup recursively checks group's members for undefined
// references and, via visited, for circular dependencies.
func walkGroup(doc *config.Document, group string, visited map[string]bool) error {
	value, ok := doc.Get("groups", group)
	if !ok {
		return fmt.Errorf("%w: an authz rule refers to group %q, which is undefined", ErrInvalidConfig, group)
	}

	for _, raw := range strings.Split(value, ",") {
		member := strings.TrimSpace(raw)
		if member == "" {
			continue
		}
		switch {
		case strings.HasPrefix(member, "@"):
			sub := member[1:]
			if visited[sub] {
				return fmt.Errorf("%w: circular dependency between groups %q and %q", ErrInvalidConfig, sub, group)
			}
			visited[sub] = true
			if err := walkGroup(doc, sub, visited); err != nil {
				return err
			}
			delete(visited, sub)
		case strings.HasPrefix(member, "&"):
			alias := member[1:]
			if _, ok := doc.Get("aliases", alias); !ok {
				return fmt.Errorf("%w: an authz rule refers to alias %q, which is undefined", ErrInvalidConfig, alias)
			}
		}
	}
	return nil
}

// validateAliases accepts any alias definition; there is nothing to
// check beyond the config layer's own structural guarantees.
func validateAliases(doc *config.Document) error {
	return nil
}

func validatePathRuleSection(doc *config.Document, name string) error {
	fspath := name
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		fspath = name[idx+1:]
	}
	if !isCanonicalPath(fspath) {
		return fmt.Errorf("%w: section %q contains non-canonical fspath %q", ErrInvalidConfig, name, fspath)
	}

	var err error
	doc.EnumerateEntries(name, func(key, value string) bool {
		err = validateRuleEntry(doc, key, value)
		return err == nil
	})
	return err
}

// isCanonicalPath reports whether path is an absolute fspath with no
// "." or ".." components, no empty (doubled-separator) components,
// and no trailing separator except for the root itself.
func isCanonicalPath(path string) bool {
	if path == "" || path[0] != '/' {
		return false
	}
	if path == "/" {
		return true
	}
	if strings.HasSuffix(path, "/") {
		return false
	}
	for _, seg := range strings.Split(path[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// validateRuleEntry checks one (key, value) entry of a path-rule
// section: the key is the rule's subject (optionally inverted with a
// single leading '~'), and the value must contain only 'r', 'w' and
// whitespace.
func validateRuleEntry(doc *config.Document, key, value string) error {
	match := key
	if strings.HasPrefix(match, "~") {
		match = match[1:]
		if strings.HasPrefix(match, "~") {
			return fmt.Errorf("%w: rule %q has more than one inversion; double negatives are not permitted", ErrInvalidConfig, key)
		}
		if match == "*" {
			return fmt.Errorf("%w: rule %q is never going to match anyone", ErrInvalidConfig, key)
		}
	}

	switch {
	case strings.HasPrefix(match, "@"):
		group := match[1:]
		if _, ok := doc.Get("groups", group); !ok {
			return fmt.Errorf("%w: an authz rule refers to group %q, which is undefined", ErrInvalidConfig, group)
		}
	case strings.HasPrefix(match, "&"):
		alias := match[1:]
		if _, ok := doc.Get("aliases", alias); !ok {
			return fmt.Errorf("%w: an authz rule refers to alias %q, which is undefined", ErrInvalidConfig, alias)
		}
	case strings.HasPrefix(match, "$"):
		token := match[1:]
		if token != "anonymous" && token != "authenticated" {
			return fmt.Errorf("%w: unrecognized authz token %q", ErrInvalidConfig, key)
		}
	}

	for _, r := range value {
		if r != 'r' && r != 'w' && !unicode.IsSpace(r) {
			return fmt.Errorf("%w: the character %q in rule %q is not allowed in authz rules", ErrInvalidConfig, r, key)
		}
	}
	return nil
}
