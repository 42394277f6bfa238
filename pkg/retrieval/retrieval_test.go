package retrieval

import (
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/repoauthz/pkg/authz"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestOpenPlainPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/authz", "[/]\n* = r\n")

	r, err := Open(fs, "/etc/authz")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "[/]\n* = r\n", string(data))
}

func TestOpenMissingPlainPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Open(fs, "/nope")
	require.Error(t, err)
}

func TestFindRepoRootLocatesMarker(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repos/proj/format", "1")
	writeFile(t, fs, "/repos/proj/conf/authz", "[/]\n* = r\n")

	root, rel, err := FindRepoRoot(fs, "/repos/proj/conf/authz")
	require.NoError(t, err)
	require.Equal(t, "/repos/proj", root)
	require.Equal(t, "conf/authz", rel)
}

func TestFindRepoRootMissingReturnsRepositoryNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repos/proj/conf/authz", "[/]\n* = r\n")

	_, _, err := FindRepoRoot(fs, "/repos/proj/conf/authz")
	require.ErrorIs(t, err, authz.ErrRepositoryNotFound)
}

func TestOpenRepoURLReadsFileAtRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repos/proj/format", "1")
	writeFile(t, fs, "/repos/proj/conf/authz", "[/]\nalice = rw\n")

	r, err := Open(fs, "file:///repos/proj/conf/authz")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "[/]\nalice = rw\n", string(data))
}

func TestOpenRepoURLRejectsDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repos/proj/format", "1")
	writeFile(t, fs, "/repos/proj/conf/authz/placeholder", "x")

	_, err := Open(fs, "file:///repos/proj/conf/authz")
	require.ErrorIs(t, err, authz.ErrIllegalTarget)
}

func TestOpenRepoURLRejectsMissingNode(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/repos/proj/format", "1")

	_, err := Open(fs, "file:///repos/proj/conf/authz")
	require.ErrorIs(t, err, authz.ErrIllegalTarget)
}

func TestLoadGroupsFileSplit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/authz", "[/trunk]\n@devs = rw\n")
	writeFile(t, fs, "/etc/groups", "[groups]\ndevs = alice\n")

	loaded, err := Load(fs, "/etc/authz", "/etc/groups", true)
	require.NoError(t, err)

	alice := "alice"
	granted, err := authz.CheckAccess(loaded, "", ptr("/trunk"), &alice, authz.Write, false)
	require.NoError(t, err)
	require.True(t, granted)
}

func ptr(s string) *string { return &s }

func TestLoadMissingRulesFailsWhenMustExist(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/etc/authz", "", true)
	require.ErrorIs(t, err, authz.ErrNotFound)
}

func TestLoadMissingRulesIsEmptyConfigWhenNotMustExist(t *testing.T) {
	fs := afero.NewMemMapFs()

	loaded, err := Load(fs, "/etc/authz", "", false)
	require.NoError(t, err)

	alice := "alice"
	granted, err := authz.CheckAccess(loaded, "", ptr("/"), &alice, authz.Read, false)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestLoadMissingGroupsFallsBackToRulesAloneWhenNotMustExist(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/authz", "[/]\n* = r\n")

	loaded, err := Load(fs, "/etc/authz", "/etc/groups", false)
	require.NoError(t, err)

	granted, err := authz.CheckAccess(loaded, "", ptr("/"), nil, authz.Read, false)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestRepositoryCachesAndRefreshes(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/authz", "[/]\n* = r\n")

	repo, err := NewRepository(fs, "/etc/authz", "", time.Hour, true)
	require.NoError(t, err)

	first, err := repo.Authz()
	require.NoError(t, err)

	// Mutate the backing file; with a long cacheDuration the cached
	// document (and therefore the cached Authz) must not change.
	writeFile(t, fs, "/etc/authz", "[/]\n* = rw\n")
	second, err := repo.Authz()
	require.NoError(t, err)
	require.Same(t, first, second)

	require.GreaterOrEqual(t, repo.CacheAge(), time.Duration(0))
}

func TestRepositoryRejectsLocalGroupsWhenSplit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/authz", "[groups]\ndevs = alice\n[/trunk]\n@devs = rw\n")
	writeFile(t, fs, "/etc/groups", "[groups]\ndevs = alice\n")

	_, err := NewRepository(fs, "/etc/authz", "/etc/groups", time.Hour, true)
	require.ErrorIs(t, err, authz.ErrInvalidConfig)
}
