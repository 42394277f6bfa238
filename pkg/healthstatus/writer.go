// Package healthstatus writes small status files describing a running
// authz server's health, for monitoring tools that would rather read a
// file than speak to a process: last_start, last_stop, and a
// periodically refreshed running file that reports query volume
// alongside the freshness of the rules it's answering from.
package healthstatus

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/repoauthz/pkg/authzlog"
)

// MetricsProvider supplies the runtime and rules-freshness signals the
// heartbeat reports. RulesCacheAge and LastReloadError let a watcher
// distinguish "serving queries against rules from 2 minutes ago" from
// "serving queries against rules that failed to reload 2 minutes ago
// and haven't been fixed since" — a distinction an idle query count
// alone can't make.
type MetricsProvider interface {
	QueryCount() int64
	StartTime() time.Time
	RulesCacheAge() time.Duration
	LastReloadError() error
}

// Writer manages the status directory for one server process.
type Writer struct {
	dir             string
	updateInterval  time.Duration
	pid             int
	version         string
	rulesSource     string
	metricsProvider MetricsProvider

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Writer rooted at dir, creating it if necessary.
// rulesSource is recorded in last_start for operators to confirm which
// rules location a given run was serving.
func New(dir string, updateInterval time.Duration, version, rulesSource string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating status directory: %w", err)
	}
	return &Writer{
		dir:            dir,
		updateInterval: updateInterval,
		pid:            os.Getpid(),
		version:        version,
		rulesSource:    rulesSource,
		stopCh:         make(chan struct{}),
	}, nil
}

// SetMetricsProvider sets the source of the heartbeat's runtime
// counters. Until set, the running file reports zero values for them.
func (w *Writer) SetMetricsProvider(provider MetricsProvider) {
	w.metricsProvider = provider
}

// WriteStartFile records when the server started and what rules it's
// serving.
func (w *Writer) WriteStartFile() error {
	now := time.Now()
	content := fmt.Sprintf(`timestamp_unix: %d
timestamp_human: %s
pid: %d
version: %s
rules_source: %s
`,
		now.Unix(),
		now.Format("Mon Jan 02 15:04:05 2006"),
		w.pid,
		w.version,
		w.rulesSource,
	)

	path := filepath.Join(w.dir, "last_start")
	if err := atomicWrite(path, []byte(content)); err != nil {
		return fmt.Errorf("writing last_start: %w", err)
	}
	authzlog.LogApp("info", "wrote status file", "file", "last_start", "rules_source", w.rulesSource)
	return nil
}

// WriteStopFile records why the server stopped, how long it ran, and
// how many queries it answered over its lifetime.
func (w *Writer) WriteStopFile(reason string) error {
	now := time.Now()

	var uptime time.Duration
	var queries int64
	if w.metricsProvider != nil {
		uptime = now.Sub(w.metricsProvider.StartTime())
		queries = w.metricsProvider.QueryCount()
	}

	content := fmt.Sprintf(`timestamp_unix: %d
timestamp_human: %s
reason: %s
uptime_seconds: %d
queries_served: %d
`,
		now.Unix(),
		now.Format("Mon Jan 02 15:04:05 2006"),
		reason,
		int64(uptime.Seconds()),
		queries,
	)

	path := filepath.Join(w.dir, "last_stop")
	if err := atomicWrite(path, []byte(content)); err != nil {
		return fmt.Errorf("writing last_stop: %w", err)
	}
	authzlog.LogApp("info", "wrote status file", "file", "last_stop", "reason", reason, "queries_served", fmt.Sprint(queries))
	return nil
}

// StartHeartbeat begins periodically refreshing the running file until
// Stop is called.
func (w *Writer) StartHeartbeat() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.updateInterval)
		defer ticker.Stop()

		if err := w.writeRunningFile(); err != nil {
			authzlog.LogAppError("failed to write running file", err)
		}

		for {
			select {
			case <-ticker.C:
				if err := w.writeRunningFile(); err != nil {
					authzlog.LogAppError("failed to write running file", err)
				}
			case <-w.stopCh:
				return
			}
		}
	}()

	authzlog.LogApp("info", "started status heartbeat", "interval", w.updateInterval.String())
}

// Stop halts the heartbeat goroutine and waits for it to exit.
func (w *Writer) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	authzlog.LogApp("info", "stopped status heartbeat")
}

func (w *Writer) writeRunningFile() error {
	now := time.Now()

	var startTime time.Time
	var queryCount int64
	var cacheAge time.Duration
	reloadStatus := "ok"
	if w.metricsProvider != nil {
		startTime = w.metricsProvider.StartTime()
		queryCount = w.metricsProvider.QueryCount()
		cacheAge = w.metricsProvider.RulesCacheAge()
		if err := w.metricsProvider.LastReloadError(); err != nil {
			reloadStatus = err.Error()
		}
	}

	uptime := int64(0)
	if !startTime.IsZero() {
		uptime = int64(now.Sub(startTime).Seconds())
	}

	content := fmt.Sprintf(`timestamp_unix: %d
uptime_seconds: %d
query_count: %d
rules_cache_age_seconds: %d
reload_status: %s
`,
		now.Unix(),
		uptime,
		queryCount,
		int64(cacheAge.Seconds()),
		reloadStatus,
	)

	path := filepath.Join(w.dir, "running")
	if err := atomicWrite(path, []byte(content)); err != nil {
		return fmt.Errorf("writing running: %w", err)
	}
	authzlog.LogApp("debug", "updated running file", "query_count", fmt.Sprint(queryCount), "reload_status", reloadStatus)
	return nil
}

// atomicWrite writes content to path by writing a temp file and
// renaming it over the destination, so readers never see a partial
// write.
func atomicWrite(path string, content []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
