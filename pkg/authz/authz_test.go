package authz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, rules string) *Authz {
	t.Helper()
	authz, err := Parse(strings.NewReader(rules), nil)
	require.NoError(t, err)
	return authz
}

func ptr(s string) *string { return &s }

func check(t *testing.T, authz *Authz, repo string, path string, user *string, required Rights, recursive bool) bool {
	t.Helper()
	granted, err := CheckAccess(authz, repo, &path, user, required, recursive)
	require.NoError(t, err)
	return granted
}

// Scenario 1: root deny, leaf grant.
func TestScenarioRootDenyLeafGrant(t *testing.T) {
	authz := mustParse(t, `
[/]
* =
[/trunk]
alice = rw
`)
	alice := ptr("alice")
	require.False(t, check(t, authz, "", "/", alice, Read, false))
	require.True(t, check(t, authz, "", "/trunk", alice, Read, false))
	require.True(t, check(t, authz, "", "/trunk/src/a.c", alice, Read, false))
	require.False(t, check(t, authz, "", "/branches", alice, Read, false))
}

// Scenario 2: recursive admission.
func TestScenarioRecursiveAdmission(t *testing.T) {
	rules := `
[/]
* =
[/trunk]
alice = rw
`
	alice := ptr("alice")
	authz := mustParse(t, rules)
	require.True(t, check(t, authz, "", "/trunk", alice, Read, true))

	authz2 := mustParse(t, rules+"\n[/trunk/secret]\nalice =\n")
	require.False(t, check(t, authz2, "", "/trunk", alice, Read, true))
	require.True(t, check(t, authz2, "", "/trunk", alice, Read, false))
}

// Scenario 3: group with alias.
func TestScenarioGroupWithAlias(t *testing.T) {
	authz := mustParse(t, `
[aliases]
a1 = alice
[groups]
devs = &a1, bob
[/code]
@devs = rw
`)
	require.True(t, check(t, authz, "", "/code/x", ptr("alice"), Write, false))
	require.False(t, check(t, authz, "", "/code/x", ptr("carol"), Read, false))
}

// Scenario 4: repository scoping.
func TestScenarioRepositoryScoping(t *testing.T) {
	authz := mustParse(t, `
[repoA:/]
alice = rw
[repoB:/]
alice =
`)
	alice := ptr("alice")
	require.True(t, check(t, authz, "repoA", "/any", alice, Read, false))
	require.False(t, check(t, authz, "repoB", "/any", alice, Read, false))
	require.False(t, check(t, authz, "", "/any", alice, Read, false))
}

// Scenario 5: anonymous vs authenticated.
func TestScenarioAnonymousVsAuthenticated(t *testing.T) {
	authz := mustParse(t, `
[/]
* = r
[/priv]
$anonymous =
`)
	require.True(t, check(t, authz, "", "/pub", nil, Read, false))
	require.False(t, check(t, authz, "", "/priv", nil, Read, false))
	require.True(t, check(t, authz, "", "/priv", ptr("alice"), Read, false))
}

// Scenario 6: group cycle rejected.
func TestScenarioGroupCycleRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("[groups]\na = @b\nb = @a\n"), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "a")
	require.Contains(t, err.Error(), "b")
}

func TestDenyByDefaultAtRoot(t *testing.T) {
	authz := mustParse(t, "[aliases]\n")
	require.False(t, check(t, authz, "", "/", ptr("alice"), Read, false))
	require.False(t, check(t, authz, "", "/anything/at/all", nil, Write, false))
}

func TestAnonymousIdentityIsFixed(t *testing.T) {
	authz := mustParse(t, `
[aliases]
ghost = nobody
[groups]
everyone = *
`)
	identity := ResolveIdentity(authz.doc, nil)
	require.True(t, identity.Contains("*"))
	require.True(t, identity.Contains("$anonymous"))
	require.False(t, identity.Contains("$authenticated"))
	require.Equal(t, 2, len(identity.Names()))
}

func TestIdentityAlwaysHasStarAndAuthTokens(t *testing.T) {
	authz := mustParse(t, "[aliases]\n")
	identity := ResolveIdentity(authz.doc, ptr("alice"))
	require.True(t, identity.Contains("*"))
	require.True(t, identity.Contains("$authenticated"))
	require.False(t, identity.Contains("$anonymous"))
}

func TestRuleOrderAndSectionOrderDontMatter(t *testing.T) {
	a := mustParse(t, "[/trunk]\nalice = r\nbob = w\n[/]\n* =\n")
	b := mustParse(t, "[/]\n* =\n[/trunk]\nbob = w\nalice = r\n")

	alice := ptr("alice")
	for _, p := range []string{"/", "/trunk", "/trunk/file"} {
		require.Equal(t, check(t, a, "", p, alice, Read, false), check(t, b, "", p, alice, Read, false), p)
	}
}

func TestRecursiveImpliesNonRecursiveOnEveryDescendant(t *testing.T) {
	authz := mustParse(t, `
[/]
* =
[/trunk]
alice = rw
[/trunk/vendor]
alice = r
`)
	alice := ptr("alice")
	require.True(t, check(t, authz, "", "/trunk", alice, Read, true))
	for _, p := range []string{"/trunk", "/trunk/vendor", "/trunk/vendor/lib", "/trunk/src"} {
		require.True(t, check(t, authz, "", p, alice, Read, false), p)
	}
}

func TestMinRightsNeverExceedsMaxRights(t *testing.T) {
	authz := mustParse(t, `
[/]
* = r
[/a]
alice = rw
[/a/b]
alice =
[/a/b/c]
alice = w
`)
	root := compileTree(authz.doc, "", ptr("alice"))
	var walk func(n *Node)
	walk = func(n *Node) {
		require.Equal(t, n.MinRights, n.MinRights&n.MaxRights)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
}

func TestNoPathQueryIsAnyAccessAnywhere(t *testing.T) {
	authz := mustParse(t, `
[/]
* =
[/secret]
alice = r
`)
	alice := ptr("alice")
	require.True(t, CheckAnyAccess(authz, "", alice, Read))
	require.False(t, CheckAnyAccess(authz, "", alice, Write))
}

func TestInvalidPathPrecondition(t *testing.T) {
	authz := mustParse(t, "[/]\n* = r\n")
	_, err := CheckAccess(authz, "", ptr("relative/path"), ptr("alice"), Read, false)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestDoubleSlashToleratedAtQueryTime(t *testing.T) {
	authz := mustParse(t, "[/a]\nalice = r\n")
	alice := ptr("alice")
	require.Equal(t,
		check(t, authz, "", "/a/b", alice, Read, false),
		check(t, authz, "", "/a//b/", alice, Read, false))
}

func TestGroupsFileSplitRejectsLocalGroups(t *testing.T) {
	_, err := Parse(
		strings.NewReader("[groups]\ndevs = alice\n[/trunk]\n@devs = rw\n"),
		strings.NewReader("[groups]\ndevs = alice\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGroupsFileSplitMerges(t *testing.T) {
	authz, err := Parse(
		strings.NewReader("[/trunk]\n@devs = rw\n"),
		strings.NewReader("[groups]\ndevs = alice\n"))
	require.NoError(t, err)
	require.True(t, check(t, authz, "", "/trunk", ptr("alice"), Write, false))
}

func TestValidatorRejectsBadRules(t *testing.T) {
	cases := map[string]string{
		"undefined group":    "[/t]\n@nosuch = r\n",
		"undefined alias":    "[/t]\n&nosuch = r\n",
		"unknown token":      "[/t]\n$bogus = r\n",
		"double negative":    "[/t]\n~~alice = r\n",
		"never matches":      "[/t]\n~* = r\n",
		"bad rule character": "[/t]\nalice = x\n",
		"non-canonical path": "[t]\nalice = r\n",
		"dotdot in path":     "[/a/../b]\nalice = r\n",
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(rules), nil)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidatorAcceptsWellFormedRules(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[aliases]
a1 = alice
[groups]
devs = &a1, bob
admins = @devs
[/trunk]
@admins = rw
~carol = r
$anonymous =
$authenticated = r
* = r
`), nil)
	require.NoError(t, err)
}
