package authz

import "strings"

// Node is one entry of the per-user, per-repository prefix tree. The
// root's segment is the empty string, and the root always has a
// non-nil Access.
type Node struct {
	Segment   string
	Access    *Access // nil unless a rule assigns rights to this exact path
	MinRights Rights
	MaxRights Rights
	Children  map[string]*Node
}

// buildTree inserts rules into a fresh prefix tree and finalizes its
// min/max rights. filterRules never emits the same section twice, and
// the config layer folds duplicate section headers into one section,
// so rules usually holds at most one entry per path and insertion order
// does not matter. The exception is an unscoped section and a
// repository-scoped section naming the same path, such as [/trunk] and
// [repo:/trunk]: both apply to repo, and the one later in document
// order sets the node's access.
func buildTree(rules []pathRule) *Node {
	root := &Node{Segment: ""}
	for _, rule := range rules {
		insertPath(root, tokenizeRulePath(rule.path), &Access{Rights: rule.rights})
	}
	if root.Access == nil {
		root.Access = &Access{Rights: 0}
	}
	finalizeTree(root, root.Access, root)
	return root
}

// tokenizeRulePath splits a rule's path on '/'. The leading '/' is
// stripped as the implicit root segment; any other empty segment
// (produced by "//" in the rule's path) is preserved as a literal
// empty-string child, matching the source implementation's tolerance
// of doubled separators when a rule's own path is parsed.
func tokenizeRulePath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// insertPath descends from node creating child nodes for each segment
// as needed, and assigns access to the final node.
func insertPath(node *Node, segments []string, access *Access) {
	if len(segments) == 0 {
		node.Access = access
		return
	}
	segment := segments[0]
	child, ok := node.Children[segment]
	if !ok {
		if node.Children == nil {
			node.Children = make(map[string]*Node)
		}
		child = &Node{Segment: segment}
		node.Children[segment] = child
	}
	insertPath(child, segments[1:], access)
}

// finalizeTree performs the post-order pass that computes min/max
// rights. inherited is the access in force at node if node has none of
// its own. parent's aggregates are updated last, so the call at the
// root (where parent == node) is idempotent.
func finalizeTree(parent *Node, inherited *Access, node *Node) {
	access := node.Access
	if access == nil {
		access = inherited
	}
	node.MinRights = access.Rights
	node.MaxRights = access.Rights

	for _, child := range node.Children {
		finalizeTree(node, access, child)
	}

	parent.MaxRights |= node.MaxRights
	parent.MinRights &= node.MinRights
}
