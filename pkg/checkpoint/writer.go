// Package checkpoint persists enriched records as they are produced.
//
// The store is newline-delimited JSON, one record per line. Every append is
// written and synced before returning, so a crash after N appends loses at
// most the record in flight. A separate error log collects one free-text
// line per item-level failure.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	recordsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_checkpoint_records_total",
		Help: "Records appended to the checkpoint store",
	}, []string{"store"})

	errorLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_checkpoint_error_lines_total",
		Help: "Lines appended to the error log",
	}, []string{"store"})

	writeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_checkpoint_write_failures_total",
		Help: "Local write failures by target",
	}, []string{"store", "target"})
)

// Options control how the stores are opened.
type Options struct {
	// Truncate empties both stores instead of appending to them.
	Truncate bool

	// RunID prefixes every error log line.
	RunID string
}

// Stats counts the lines written through a Writer.
type Stats struct {
	Appended  int
	ErrorLogs int
}

// Writer appends records to the checkpoint store and diagnostics to the
// error log. It is safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	store     *os.File
	errLog    *os.File
	storePath string
	errPath   string
	runID     string
	name      string
	stats     Stats
	logger    zerolog.Logger
}

// Open opens (creating if needed) the checkpoint store and the error log.
func Open(storePath, errorLogPath string, opts Options) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if opts.Truncate {
		flags |= os.O_TRUNC
	}

	for _, p := range []string{storePath, errorLogPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", p, err)
		}
	}

	store, err := os.OpenFile(storePath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	errLog, err := os.OpenFile(errorLogPath, flags, 0o644)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(storePath), filepath.Ext(storePath))
	logger := log.With().Str("component", "checkpoint").Str("store", storePath).Logger()
	logger.Info().Bool("truncate", opts.Truncate).Msg("Opened checkpoint store")

	return &Writer{
		store:     store,
		errLog:    errLog,
		storePath: storePath,
		errPath:   errorLogPath,
		runID:     opts.RunID,
		name:      name,
		logger:    logger,
	}, nil
}

// Append writes rec as one JSON line and syncs it to disk.
func (w *Writer) Append(rec record.Enriched) error {
	line, err := json.Marshal(rec)
	if err != nil {
		writeFailuresTotal.WithLabelValues(w.name, "store").Inc()
		return fmt.Errorf("marshal record %s: %w", rec.SourceID(), err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := writeSynced(w.store, line); err != nil {
		writeFailuresTotal.WithLabelValues(w.name, "store").Inc()
		return fmt.Errorf("append record %s: %w", rec.SourceID(), err)
	}

	w.stats.Appended++
	recordsAppendedTotal.WithLabelValues(w.name).Inc()
	w.logger.Debug().Str("id", rec.SourceID()).Msg("Appended record")
	return nil
}

// LogError appends one diagnostic line to the error log and echoes it to
// the console. Newlines inside msg are flattened so each failure stays on
// one line.
func (w *Writer) LogError(msg string) error {
	msg = strings.ReplaceAll(strings.TrimSpace(msg), "\n", " ")
	w.logger.Warn().Str("error_log", w.errPath).Msg(msg)

	line := time.Now().UTC().Format(time.RFC3339)
	if w.runID != "" {
		line += " run=" + w.runID
	}
	line += " " + msg + "\n"

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := writeSynced(w.errLog, []byte(line)); err != nil {
		writeFailuresTotal.WithLabelValues(w.name, "error_log").Inc()
		w.logger.Error().Err(err).Msg("Could not write error log")
		return fmt.Errorf("append error log: %w", err)
	}

	w.stats.ErrorLogs++
	errorLinesTotal.WithLabelValues(w.name).Inc()
	return nil
}

// Stats returns the counts written so far.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// StorePath returns the checkpoint store path.
func (w *Writer) StorePath() string {
	return w.storePath
}

// ErrorLogPath returns the error log path.
func (w *Writer) ErrorLogPath() string {
	return w.errPath
}

// Close closes both stores.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	storeErr := w.store.Close()
	logErr := w.errLog.Close()
	if storeErr != nil {
		return fmt.Errorf("close checkpoint store: %w", storeErr)
	}
	if logErr != nil {
		return fmt.Errorf("close error log: %w", logErr)
	}
	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
