package authz

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/repoauthz/pkg/config"
)

// Authz is a loaded, validated rules document. It is safe for
// concurrent use: every query builds its own, short-lived compiled
// tree and never mutates the document.
type Authz struct {
	doc *config.Document
}

// Parse builds an Authz from rules and, optionally, a separate groups
// document. If groups is non-nil, rules must not itself contain a
// [groups] section.
func Parse(rules io.Reader, groups io.Reader) (*Authz, error) {
	doc, err := config.Parse(rules)
	if err != nil {
		return nil, fmt.Errorf("parsing rules document: %w", err)
	}

	if groups != nil {
		groupsDoc, err := config.Parse(groups)
		if err != nil {
			return nil, fmt.Errorf("parsing groups document: %w", err)
		}
		if err := mergeGroups(doc, groupsDoc); err != nil {
			return nil, err
		}
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}
	return &Authz{doc: doc}, nil
}

// NewFromDocument wraps an already-parsed, already-validated document.
// Used by callers (pkg/retrieval) that own the parse/validate sequence
// themselves, e.g. to chain file-retrieval errors with more context.
func NewFromDocument(doc *config.Document) *Authz {
	return &Authz{doc: doc}
}

// mergeGroups copies groupsDoc's [groups] section into doc, failing if
// doc already defines one itself.
func mergeGroups(doc, groupsDoc *config.Document) error {
	if doc.HasSection("groups") {
		return fmt.Errorf("%w: authz file cannot contain any groups when global groups are being used", ErrInvalidConfig)
	}
	groupsDoc.EnumerateEntries("groups", func(key, value string) bool {
		doc.AddEntry("groups", key, value)
		return true
	})
	return nil
}

// CheckAccess reports whether user has required access to path within
// repo. repoName "" matches only rules without a "repo:" prefix. A nil
// path answers "does user have any access anywhere in the repo". A
// non-nil path must start with '/'.
func CheckAccess(authz *Authz, repoName string, path *string, user *string, required Rights, recursive bool) (bool, error) {
	root := compileTree(authz.doc, repoName, user)

	if path == nil {
		return root.MaxRights&required == required, nil
	}
	if !strings.HasPrefix(*path, "/") {
		return false, ErrInvalidPath
	}

	segments := tokenizeQueryPath((*path)[1:])
	return checkAccess(root, segments, required, recursive), nil
}

// CheckAnyAccess reports whether user has required access to some path,
// anywhere in repo. Equivalent to CheckAccess with a nil path.
func CheckAnyAccess(authz *Authz, repoName string, user *string, required Rights) bool {
	granted, _ := CheckAccess(authz, repoName, nil, user, required, false)
	return granted
}

// CompileTree exposes the per-(repo, user) prefix tree that CheckAccess
// builds internally, for callers that want to inspect or render it
// directly (an interactive browser, a "why" explainer) rather than
// only get a yes/no answer.
func CompileTree(authz *Authz, repoName string, user *string) *Node {
	return compileTree(authz.doc, repoName, user)
}

// compileTree builds the filtered prefix tree for one (repo, user)
// query: resolve the identity set, filter the rules document down to
// the sections that apply, and insert them into a fresh tree.
func compileTree(doc *config.Document, repoName string, user *string) *Node {
	identities := ResolveIdentity(doc, user)
	rules := filterRules(doc, repoName, identities)
	return buildTree(rules)
}
