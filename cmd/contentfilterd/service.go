package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/kardianos/service"
)

// serviceName and friends name the OS service this process installs under,
// mirroring the constants at the top of the teacher's internal/home's own
// service.go.
const (
	serviceName        = "contentfilterd"
	serviceDisplayName = "Content filter daemon"
	serviceDescription = "Transparent HTTP content filter and rule engine"
)

// program adapts [runDaemon] to [service.Interface], the same shape as the
// teacher's internal/home's own program type, trimmed to this daemon's
// single long-running loop (no client build filesystem, no DNS-specific
// signal handling).
type program struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	opts   options
	done   chan struct{}
}

// type check
var _ service.Interface = (*program)(nil)

// Start implements [service.Interface]. Per its contract it must not block;
// the actual work runs in a goroutine.
func (p *program) Start(_ service.Service) (err error) {
	go func() {
		defer close(p.done)

		runDaemon(p.ctx, p.logger, p.opts)
	}()

	return nil
}

// Stop implements [service.Interface].
func (p *program) Stop(_ service.Service) (err error) {
	p.logger.InfoContext(p.ctx, "stopping: waiting for cleanup")

	p.cancel()
	<-p.done

	return nil
}

// handleServiceControlAction installs, uninstalls, starts, stops, or
// queries the OS service, or (the default, empty action) simply runs the
// daemon in the foreground — exactly the branch point the teacher's own
// handleServiceControlAction makes in internal/home/service.go, narrowed to
// the service actions this daemon supports and without the install-wizard
// first-run messaging, which belongs to a web UI this module does not ship.
func handleServiceControlAction(ctx context.Context, logger *slog.Logger, opts options) {
	if opts.serviceControlAction == "" {
		runDaemon(ctx, logger, opts)

		return
	}

	pwd, err := os.Getwd()
	if err != nil {
		logger.ErrorContext(ctx, "getting working directory", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}

	svcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &program{
		ctx:    svcCtx,
		cancel: cancel,
		logger: logger,
		opts:   opts,
		done:   make(chan struct{}),
	}

	svcConfig := &service.Config{
		Name:             serviceName,
		DisplayName:      serviceDisplayName,
		Description:      serviceDescription,
		WorkingDirectory: pwd,
		Arguments:        []string{"-config", opts.configPath, "-listen", opts.listenAddr},
	}

	s, err := service.New(p, svcConfig)
	if err != nil {
		logger.ErrorContext(ctx, "initializing service", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}

	if err = runServiceCommand(ctx, logger, s, opts.serviceControlAction); err != nil {
		logger.ErrorContext(ctx, "handling service command", slogutil.KeyError, err)
		os.Exit(exitCodeFailure)
	}
}

// runServiceCommand dispatches one service-manager action.
func runServiceCommand(ctx context.Context, logger *slog.Logger, s service.Service, action string) (err error) {
	switch action {
	case "status":
		status, serr := s.Status()
		if serr != nil {
			return fmt.Errorf("querying status: %w", serr)
		}

		logger.InfoContext(ctx, "service status", "status", status)

		return nil
	case "run":
		return s.Run()
	default:
		if err = service.Control(s, action); err != nil {
			return fmt.Errorf("executing %s: %w", action, err)
		}

		logger.InfoContext(ctx, "action completed", "action", action)

		return nil
	}
}
