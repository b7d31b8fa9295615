// Command contentfilterd is the process bootstrap for the content-filtering
// engine: it parses flags, loads the initial configuration, starts the
// queue-verdict adapter loop, installs the OS-service lifecycle, and wires
// configuration reload — the pieces spec.md names as external collaborators
// but SPEC_FULL.md requires a concrete seam for, so the core can be
// exercised end-to-end.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/capcheck"
	"github.com/qveil/contentfilter/internal/config"
	"github.com/qveil/contentfilter/internal/engine"
	"github.com/qveil/contentfilter/internal/filterlog"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/metrics"
	"github.com/qveil/contentfilter/internal/netverdict"
	"github.com/qveil/contentfilter/internal/reload"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fatalf("parsing options: %s", err)
	}

	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}

	logger := slogutil.New(&slogutil.Config{
		Output:       os.Stdout,
		Format:       slogutil.FormatJSON,
		Level:        logLevel,
		AddTimestamp: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go waitForShutdownSignal(ctx, logger, cancel)

	handleServiceControlAction(ctx, logger, opts)
}

// waitForShutdownSignal cancels cancel on SIGINT or SIGTERM, and triggers a
// best-effort reload notice (but no action; reload is filesystem-driven, per
// spec.md §5) on SIGHUP, mirroring the signal dispatch in the teacher's own
// home.Main without the DNS/TLS-specific reload calls that package makes.
func waitForShutdownSignal(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.InfoContext(ctx, "received SIGHUP; configuration reload is file-watch driven")
			default:
				logger.InfoContext(ctx, "received signal, shutting down", "signal", sig)
				cancel()

				return
			}
		}
	}
}

// runDaemon builds every collaborator the engine needs and runs the
// queue-verdict loop until ctx is cancelled. It is the single long-running
// body both the foreground "run" path and the installed-service "Start"
// path share.
func runDaemon(ctx context.Context, logger *slog.Logger, opts options) {
	reg := prometheus.NewRegistry()

	m, err := metrics.New("contentfilterd", reg)
	if err != nil {
		logger.ErrorContext(ctx, "registering metrics", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}

	requestLog := filterlog.New(&filterlog.Config{
		File:       opts.logFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
		Verbose:    opts.verbose,
	}, m)

	registry := filterobj.NewRegistry(logger)
	registry.RegisterBuiltins()
	registry.LoadPlugins(ctx, opts.pluginDirs)

	loaderConf := &config.LoaderConfig{Logger: logger, Metrics: m, Registry: registry}

	loader, err := config.NewLoader(loaderConf)
	if err != nil {
		logger.ErrorContext(ctx, "constructing loader", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}

	cf, err := loadFromPath(ctx, loader, opts.configPath)
	if err != nil {
		// Per spec.md §7, the process does not start with a bad
		// configuration.
		logger.ErrorContext(ctx, "loading initial configuration", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}

	slot := engine.NewSlot(cf)

	version := &versionCounter{}
	version.Inc()

	watcher, err := reload.New(logger, m, opts.configPath, slot,
		func(ctx context.Context, path string) (cf *engine.ContentFilter, err error) {
			cf, err = loadFromPath(ctx, loader, path)
			if err == nil {
				version.Inc()
			}

			return cf, err
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "starting configuration watcher", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}
	defer func() { _ = watcher.Close() }()

	watcher.Start(ctx)

	var marker netverdict.MarkSetter

	if !capcheck.HaveNetAdmin() {
		logger.WarnContext(ctx, "connection marking unavailable: process lacks CAP_NET_ADMIN")
	} else if ctMarker, merr := netverdict.NewConntrackMarker(); merr != nil {
		logger.WarnContext(ctx, "connection marking unavailable", slogutil.KeyError, merr)
	} else {
		marker = ctMarker
		defer func() { _ = ctMarker.Close() }()
	}

	verdictAdapter := netverdict.New(stubQueueVerdict(logger), marker)

	debugSrv := newDebugServer(logger, slot, version, opts.listenAddr)
	go func() {
		if serr := debugSrv.ListenAndServe(); serr != nil {
			logger.ErrorContext(ctx, "debug server stopped", slogutil.KeyError, serr)
		}
	}()
	defer shutdownDebugServer(context.Background(), logger, debugSrv)

	logger.InfoContext(ctx, "contentfilterd ready",
		"config", opts.configPath, "listen", opts.listenAddr)

	runWorker(ctx, logger, slot, noopQueueReader{}, verdictAdapter, requestLog)
}

// loadFromPath opens path and runs it through loader, defaulting to
// action.Accept when no rule matches, per spec.md §3's "initial value
// accept."
func loadFromPath(ctx context.Context, loader *config.Loader, path string) (cf *engine.ContentFilter, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return loader.Load(ctx, f, action.Accept)
}

// stubQueueVerdict returns a [netverdict.QueueVerdictFunc] that only logs
// the verdict it would have applied: the real nfq_set_verdict-equivalent
// call belongs to the packet-queue collaborator named as out of scope in
// spec.md §1, which this module does not ship.
func stubQueueVerdict(logger *slog.Logger) (f func(ctx context.Context, queueID, packetID uint32, v netverdict.QueueVerdict) error) {
	return func(ctx context.Context, queueID, packetID uint32, v netverdict.QueueVerdict) (err error) {
		logger.DebugContext(ctx, "queue verdict",
			"queue_id", queueID, "packet_id", packetID, "verdict", v.String())

		return nil
	}
}
