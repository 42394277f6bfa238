package retrieval

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/dustin/go-humanize"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/config"
)

// documentCacheSize bounds the number of distinct resolved locations
// (rules and groups files, across however many repositories a long
// running caller serves) kept parsed in memory at once.
const documentCacheSize = 64

// Repository is a long-lived, cache-refreshing view over one rules
// location (and optional groups location), for callers such as a
// server process that answer many queries against the same
// configuration without re-reading and re-parsing it every time.
type Repository struct {
	fs            afero.Fs
	rules         Location
	groups        Location
	cacheDuration time.Duration
	mustExist     bool

	docCache *lru.Cache[Location, *config.Document]

	mu          sync.RWMutex
	authz       *authz.Authz
	lastRefresh time.Time
	lastErr     error
}

// NewRepository creates a Repository that serves Authz() from a cache
// refreshed at most once per cacheDuration. mustExist has the same
// meaning as Load's: false tolerates a missing rules or groups file
// instead of failing the initial load and every refresh after it.
func NewRepository(fs afero.Fs, rules, groups Location, cacheDuration time.Duration, mustExist bool) (*Repository, error) {
	cache, err := lru.New[Location, *config.Document](documentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}

	r := &Repository{
		fs:            fs,
		rules:         rules,
		groups:        groups,
		cacheDuration: cacheDuration,
		mustExist:     mustExist,
		docCache:      cache,
	}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Authz returns the repository's current compiled configuration,
// refreshing it first if the cache has expired.
func (r *Repository) Authz() (*authz.Authz, error) {
	r.mu.RLock()
	stale := time.Since(r.lastRefresh) >= r.cacheDuration
	current := r.authz
	r.mu.RUnlock()

	if !stale {
		return current, nil
	}
	if err := r.refresh(); err != nil {
		if current != nil {
			return current, nil
		}
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authz, nil
}

// CacheAge reports how long ago the configuration was last refreshed,
// for status reporting and logs.
func (r *Repository) CacheAge() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.lastRefresh)
}

// LastRefreshError reports the error from the most recent refresh
// attempt, or nil if it succeeded. Authz() keeps serving the
// last-good configuration when a refresh fails, so this is how a
// caller (or healthstatus.Writer) notices a rules file has gone bad
// without Authz() itself returning an error.
func (r *Repository) LastRefreshError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// String renders the repository's cache state in a human-friendly
// form, e.g. "refreshed 42 seconds ago".
func (r *Repository) String() string {
	return fmt.Sprintf("refreshed %s", humanize.Time(time.Now().Add(-r.CacheAge())))
}

func (r *Repository) refresh() error {
	r.docCache.Purge()
	doc, err := r.load()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	if err != nil {
		return err
	}
	r.authz = authz.NewFromDocument(doc)
	r.lastRefresh = time.Now()
	return nil
}

func (r *Repository) load() (*config.Document, error) {
	doc, err := r.cachedDocument(r.rules)
	if err != nil {
		if !r.mustExist && errors.Is(err, authz.ErrNotFound) {
			doc = config.NewDocument()
		} else {
			return nil, fmt.Errorf("loading rules from %q: %w", r.rules, err)
		}
	}

	if r.groups != "" {
		if doc.HasSection("groups") {
			return nil, fmt.Errorf("%w: authz file cannot contain any groups when global groups are being used", authz.ErrInvalidConfig)
		}
		groupsDoc, err := r.cachedDocument(r.groups)
		if err != nil {
			if !r.mustExist && errors.Is(err, authz.ErrNotFound) {
				groupsDoc = nil
			} else {
				return nil, fmt.Errorf("loading groups from %q: %w", r.groups, err)
			}
		}
		if groupsDoc != nil {
			doc = mergeDocuments(doc, groupsDoc)
		}
	}

	if err := authz.Validate(doc); err != nil {
		return nil, fmt.Errorf("loading rules from %q: %w", r.rules, err)
	}
	return doc, nil
}

// cachedDocument returns a parsed document for loc, reusing the
// in-memory cache when present. A cache hit still reflects the
// location's content at the time it was last loaded; invalidation
// happens only through Repository's own cacheDuration-driven refresh,
// never implicitly.
func (r *Repository) cachedDocument(loc Location) (*config.Document, error) {
	if doc, ok := r.docCache.Get(loc); ok {
		return doc, nil
	}
	doc, err := LoadDocument(r.fs, loc)
	if err != nil {
		return nil, err
	}
	r.docCache.Add(loc, doc)
	return doc, nil
}

// mergeDocuments folds groupsDoc's [groups] section into a copy of
// doc's sections, mirroring authz.Parse's split-file handling for
// callers (Repository) that must validate the merged result themselves
// before handing it to authz.NewFromDocument.
func mergeDocuments(doc, groupsDoc *config.Document) *config.Document {
	merged := config.NewDocument()
	for _, name := range doc.SectionNames() {
		doc.EnumerateEntries(name, func(key, value string) bool {
			merged.AddEntry(name, key, value)
			return true
		})
	}
	groupsDoc.EnumerateEntries("groups", func(key, value string) bool {
		merged.AddEntry("groups", key, value)
		return true
	})
	return merged
}
