// Package filterlog implements the matched-request logger called at request
// teardown, built the way the teacher configures its own [*slog.Logger]
// output: [slogutil.New] for structured formatting, [lumberjack.Logger] as
// the rotated output writer.
package filterlog

import (
	"context"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/metrics"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures [New]. File may be empty, in which case log lines go to
// the process's standard output instead of a rotated file.
type Config struct {
	// File is the path to the rotated log file. Empty means stdout.
	File string

	// MaxSizeMB is the maximum size in megabytes of the log file before it
	// gets rotated.
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	// MaxAgeDays is the maximum number of days to retain old log files.
	MaxAgeDays int

	// Compress determines whether rotated log files are compressed.
	Compress bool

	// Verbose raises the logger to debug level.
	Verbose bool
}

// Logger emits one structured line per matched, loggable request, per
// spec.md §4.8.
type Logger struct {
	slog *slog.Logger
	m    *metrics.Metrics
}

// New returns a Logger configured per conf. m may be nil.
func New(conf *Config, m *metrics.Metrics) (l *Logger) {
	lvl := slog.LevelInfo
	if conf.Verbose {
		lvl = slog.LevelDebug
	}

	var w interface {
		Write([]byte) (int, error)
	} = os.Stdout
	if conf.File != "" {
		w = &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   conf.Compress,
		}
	}

	sl := slogutil.New(&slogutil.Config{
		Output:       w,
		Format:       slogutil.FormatJSON,
		Level:        lvl,
		AddTimestamp: true,
	})

	return &Logger{slog: sl, m: m}
}

// LogRequest emits a teardown log line for req if its matched rule requests
// logging or notification. verdict is the action the engine actually
// returned for req, which per spec.md §4.6 may differ from the matched
// rule's own configured action. A request with no matched rule, or whose
// rule requests neither, produces no output.
func (l *Logger) LogRequest(ctx context.Context, req *httpreq.Request, verdict action.Action) {
	mr := req.RuleMatched()
	if mr == nil {
		return
	}

	if !mr.ShouldLog() && !mr.ShouldNotify() {
		return
	}

	elapsed := req.Elapsed()

	l.slog.InfoContext(ctx, "request matched",
		"request_id", req.ID,
		"rule_id", mr.RuleID(),
		"url", req.URL,
		"verdict", int(verdict),
		"content_length", req.ContentLength,
		"content_received", req.ContentReceived,
		"elapsed_seconds", elapsed.Seconds(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
