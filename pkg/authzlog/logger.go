// Package authzlog provides the two loggers an authz server needs: an
// application logger for startup, configuration and retrieval events,
// and a query logger that records one logfmt line per access decision.
// It follows the same global-initialize pattern as a long-running
// daemon's own logging package: call Initialize (or MustInitialize)
// once at startup, then use the package-level Log* functions.
package authzlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Config controls where each logger writes. An empty QueryLogPath
// discards query logs; AppLogPath always falls back to stderr.
type Config struct {
	AppLogPath   string
	QueryLogPath string
}

var (
	appLog   = log.New(os.Stderr, "", log.LstdFlags)
	queryLog = log.New(io.Discard, "", 0)
)

// Initialize sets up both loggers from config. It is safe to call more
// than once; the most recent call wins.
func Initialize(config *Config) error {
	if config.AppLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.AppLogPath), 0755); err != nil {
			return fmt.Errorf("creating app log directory: %w", err)
		}
		f, err := os.OpenFile(config.AppLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening app log: %w", err)
		}
		appLog = log.New(f, "", log.LstdFlags)
	} else {
		appLog = log.New(os.Stderr, "", log.LstdFlags)
	}

	if config.QueryLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.QueryLogPath), 0755); err != nil {
			return fmt.Errorf("creating query log directory: %w", err)
		}
		f, err := os.OpenFile(config.QueryLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening query log: %w", err)
		}
		queryLog = log.New(f, "", 0)
	} else {
		queryLog = log.New(io.Discard, "", 0)
	}

	return nil
}

// MustInitialize calls Initialize and panics on failure, for use in a
// command's early setup where there is no sensible way to continue.
func MustInitialize(config *Config) {
	if err := Initialize(config); err != nil {
		panic(err)
	}
}

// NewQueryID returns a fresh correlation ID for one query, to be
// threaded through LogQuery and any error messages returned to the
// caller so the two can be matched up in the logs.
func NewQueryID() string {
	return uuid.NewString()
}

// LogQuery records one access decision in logfmt: queryID, repo, user,
// path, the rights requested, whether the check was recursive, and the
// outcome.
func LogQuery(queryID, repo, user, path string, required string, recursive, granted bool) {
	fields := []field{
		{"query_id", queryID},
		{"repo", orDefault(repo, "-")},
		{"user", orDefault(user, "$anonymous")},
		{"path", orDefault(path, "-")},
		{"rights", required},
		{"recursive", fmt.Sprint(recursive)},
		{"granted", fmt.Sprint(granted)},
	}
	queryLog.Println(logfmt(fields))
}

// LogApp records an application-level event: startup, configuration
// reload, retrieval failure. Extra fields are key/value pairs appended
// after level and message.
func LogApp(level, message string, kv ...string) {
	fields := []field{{"level", level}, {"msg", message}}
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, field{kv[i], kv[i+1]})
	}
	appLog.Println(logfmt(fields))
}

// LogAppError is LogApp at level "error", with the error's text
// attached as the "err" field.
func LogAppError(message string, err error, kv ...string) {
	LogApp("error", message, append(kv, "err", err.Error())...)
}

type field struct {
	key   string
	value string
}

func logfmt(fields []field) string {
	var out string
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f.key + "=" + quoteIfNeeded(f.value)
	}
	return out
}

func quoteIfNeeded(s string) string {
	for _, r := range s {
		if r == ' ' || r == '=' || r == '"' {
			return fmt.Sprintf("%q", s)
		}
	}
	if s == "" {
		return `""`
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
