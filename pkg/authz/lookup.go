package authz

// checkAccess walks root following the already-normalized segments of
// a query path and decides whether required rights are granted.
// required must not include any flag beyond Read/Write; recursive is
// passed separately. Lookup cost is O(len(segments)), independent of
// the tree's total size, thanks to the three min/max shortcuts below.
func checkAccess(root *Node, segments []string, required Rights, recursive bool) bool {
	current := root
	access := root.Access
	minRights := root.MinRights
	maxRights := root.MaxRights

	for _, segment := range segments {
		// Shortcut A: nowhere in this subtree can required be granted.
		if maxRights&required != required {
			return false
		}
		// Shortcut B: required already holds everywhere in this subtree.
		if minRights&required == required {
			return true
		}
		// Shortcut C: uniform over the subtree, so either of the above
		// would have fired; since neither did, required isn't granted.
		if (minRights & required) == (maxRights & required) {
			return (minRights & required) == required
		}

		child, ok := current.Children[segment]
		if !ok {
			// No rules beneath here; the subtree is governed entirely
			// by the nearest ancestor's access.
			minRights, maxRights = access.Rights, access.Rights
			current = nil
			break
		}
		if child.Access != nil {
			access = child.Access
		}
		minRights, maxRights = child.MinRights, child.MaxRights
		current = child
	}

	if recursive {
		return minRights&required == required
	}
	return access.Rights&required == required
}

// tokenizeQueryPath splits a query path (with its leading '/' already
// stripped by the caller) on '/', collapsing runs of separators and
// dropping leading/trailing empties so that "a//b/" and "a/b" walk the
// tree identically.
func tokenizeQueryPath(path string) []string {
	var segments []string
	start := -1
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if start >= 0 {
				segments = append(segments, path[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return segments
}
