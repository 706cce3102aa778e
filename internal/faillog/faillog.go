// Package faillog records per-unit failures in an append-only,
// tab-delimited log. A failed unit never stops the run; its entry here is
// what a later run or an operator works from.
package faillog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/observability"
)

// Entry is one failure: which unit, which stage of its processing, and the
// classified cause.
type Entry struct {
	RunID   string
	Dataset domain.Dataset
	Country string
	Station string
	Year    int
	Stage   string // download or process
	Kind    domain.ErrorKind
	Message string
}

// Logger appends entries to the failure log. Safe for concurrent use. The
// file is opened and closed per entry, so everything appended before a
// crash stays on disk.
type Logger struct {
	path    string
	metrics *observability.Metrics

	mu sync.Mutex
}

// New creates a failure logger writing to path.
func New(path string, metrics *observability.Metrics) *Logger {
	return &Logger{path: path, metrics: metrics}
}

// Path returns the log's location on disk.
func (l *Logger) Path() string { return l.path }

// Append writes one entry.
func (l *Logger) Append(e Entry) error {
	line := strings.Join([]string{
		domain.Clock().Now().UTC().Format(time.RFC3339),
		e.RunID,
		string(e.Dataset),
		e.Country,
		e.Station,
		strconv.Itoa(e.Year),
		e.Stage,
		string(e.Kind),
		sanitize(e.Message),
	}, "\t") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	l.metrics.FailuresLogged.WithLabelValues(string(e.Dataset), e.Stage).Inc()
	return nil
}

// sanitize keeps messages on one line and out of the delimiter.
func sanitize(msg string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, msg)
}
