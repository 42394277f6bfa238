// Package retrieval resolves a rules document's location — a plain
// filesystem path, or a "file://" URL into a versioned repository — and
// loads it into an *authz.Authz. It is the collaborator spec.md calls
// out separately from the core engine: the core never touches a
// filesystem or a URL, only io.Readers.
package retrieval

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/config"
)

// rootMarker is the name of the file that marks a directory as a
// repository root, in the spirit of a versioned repository's on-disk
// format marker. Its content is not inspected.
const rootMarker = "format"

// Location is where a rules (or groups) document lives: either a plain
// path on fs, or a "file://" URL whose remainder is resolved against a
// detected repository root.
type Location string

// Open resolves loc against fs and returns its contents. A bare path
// is opened directly. A "file://" URL is resolved by FindRepoRoot and
// then read from the repository's current snapshot.
func Open(fs afero.Fs, loc Location) (io.ReadCloser, error) {
	raw := string(loc)
	if !strings.HasPrefix(raw, "file://") {
		f, err := fs.Open(raw)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %q", authz.ErrNotFound, raw)
			}
			return nil, fmt.Errorf("opening %q: %w", raw, err)
		}
		return f, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed repository URL %q: %v", authz.ErrIllegalTarget, raw, err)
	}

	repoRoot, relPath, err := FindRepoRoot(fs, u.Path)
	if err != nil {
		return nil, err
	}

	target := path.Join(repoRoot, relPath)
	info, err := fs.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %q in repository %q", authz.ErrIllegalTarget, authz.ErrNotFound, relPath, repoRoot)
		}
		return nil, fmt.Errorf("%w: cannot stat %q in repository %q: %v", authz.ErrIllegalTarget, relPath, repoRoot, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory, not a file, in repository %q", authz.ErrIllegalTarget, relPath, repoRoot)
	}

	f, err := fs.Open(target)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q in repository %q: %v", authz.ErrIllegalTarget, relPath, repoRoot, err)
	}
	return f, nil
}

// FindRepoRoot walks target's ancestors looking for rootMarker and
// returns the directory it was found in along with target's path
// relative to that directory. It fails with ErrRepositoryNotFound if
// no ancestor carries the marker before reaching the filesystem root.
func FindRepoRoot(fs afero.Fs, target string) (repoRoot, relPath string, err error) {
	clean := path.Clean("/" + target)
	dir := clean
	for {
		if exists, _ := afero.Exists(fs, path.Join(dir, rootMarker)); exists {
			rel := strings.TrimPrefix(clean, dir)
			rel = strings.TrimPrefix(rel, "/")
			return dir, rel, nil
		}
		if dir == "/" || dir == "." {
			return "", "", fmt.Errorf("%w: no repository root found above %q", authz.ErrRepositoryNotFound, target)
		}
		dir = path.Dir(dir)
	}
}

// Load opens rules (and, if groups is non-empty, a separate groups
// document) through fs and parses them into an *authz.Authz.
//
// mustExist governs what happens when a location's file doesn't exist:
// true fails the load, matching a caller that expects its rules file to
// be present. false tolerates a missing rules file by falling back to
// an empty, deny-by-default configuration, and tolerates a missing
// groups file by loading rules alone — mirroring authz_retrieve_config_repo's
// must_exist parameter, which treats an absent target as "no
// configuration" rather than an error.
func Load(fs afero.Fs, rules Location, groups Location, mustExist bool) (*authz.Authz, error) {
	rulesReader, err := Open(fs, rules)
	if err != nil {
		if !mustExist && errors.Is(err, authz.ErrNotFound) {
			return authz.NewFromDocument(config.NewDocument()), nil
		}
		return nil, fmt.Errorf("loading rules from %q: %w", rules, err)
	}
	defer rulesReader.Close()

	var groupsReader io.Reader
	if groups != "" {
		g, err := Open(fs, groups)
		if err != nil {
			if mustExist || !errors.Is(err, authz.ErrNotFound) {
				return nil, fmt.Errorf("loading groups from %q: %w", groups, err)
			}
		} else {
			defer g.Close()
			groupsReader = g
		}
	}

	loaded, err := authz.Parse(rulesReader, groupsReader)
	if err != nil {
		return nil, fmt.Errorf("loading rules from %q: %w", rules, err)
	}
	return loaded, nil
}

// LoadDocument is the lower-level counterpart of Load: it resolves and
// parses rules into a *config.Document without validating it as an
// authz configuration. Used by Repository to populate the document
// cache independently of the authz-level compile step.
func LoadDocument(fs afero.Fs, loc Location) (*config.Document, error) {
	r, err := Open(fs, loc)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return config.Parse(r)
}
