package authz

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/mmcdole/repoauthz/pkg/config"
)

// IdentitySet is the set of names a specific user is addressable by
// within a rules document: their own name, their aliases (prefixed
// '&'), every group they are transitively a member of (prefixed '@'),
// and the standing tokens "*" and "$authenticated"/"$anonymous".
type IdentitySet struct {
	names mapset.Set[string]
}

// Contains reports whether name is one of the identity's addresses.
func (s IdentitySet) Contains(name string) bool {
	return s.names != nil && s.names.Contains(name)
}

// Names returns the identity's addresses in no particular order.
func (s IdentitySet) Names() []string {
	if s.names == nil {
		return nil
	}
	return s.names.ToSlice()
}

// ResolveIdentity computes the identity set for user against doc. A nil
// user resolves to the anonymous identity {"*", "$anonymous"}.
func ResolveIdentity(doc *config.Document, user *string) IdentitySet {
	if user == nil {
		return IdentitySet{names: mapset.NewThreadUnsafeSet("*", "$anonymous")}
	}

	names := mapset.NewThreadUnsafeSet(*user)
	doc.EnumerateEntries("aliases", func(alias, value string) bool {
		if value == *user {
			names.Add("&" + alias)
		}
		return true
	})

	// Reverse membership: for every group whose member list names one of
	// our current addresses (or any other group), record group as a
	// parent of that member. Built against the pre-closure address set,
	// matching the membership test the rules file author could see.
	memberships := make(map[string][]string)
	doc.EnumerateEntries("groups", func(group, memberList string) bool {
		decorated := "@" + group
		for _, raw := range strings.Split(memberList, ",") {
			member := strings.TrimSpace(raw)
			if member == "" {
				continue
			}
			if strings.HasPrefix(member, "@") || names.Contains(member) {
				memberships[member] = append(memberships[member], decorated)
			}
		}
		return true
	})

	// Transitive closure over group membership. The work list only
	// grows, and the rule set is finite, so this terminates even in the
	// presence of cycles (cycles are rejected earlier, by Validate).
	workList := names.ToSlice()
	for i := 0; i < len(workList); i++ {
		for _, parent := range memberships[workList[i]] {
			if !names.Contains(parent) {
				names.Add(parent)
				workList = append(workList, parent)
			}
		}
	}

	names.Add("*")
	names.Add("$authenticated")
	return IdentitySet{names: names}
}
