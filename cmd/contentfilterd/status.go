package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qveil/contentfilter/internal/engine"
)

// statusResponse is the body served at /debug, grounded on the teacher's
// own /control/status handler in internal/home/control.go: a small,
// flat JSON document describing the currently published engine rather than
// the full configuration.
type statusResponse struct {
	ConfigVersion   uint64 `json:"config_version"`
	Refcount        int64  `json:"refcount"`
	HasStreamFilter bool   `json:"has_stream_filter"`
	HasFileFilter   bool   `json:"has_file_filter"`
}

// debugServer serves the /debug status endpoint and the Prometheus
// /metrics endpoint on one listener, matching spec.md's added "ambient-ops
// surfaces the Non-goals do not exclude."
type debugServer struct {
	logger *slog.Logger
	slot   *engine.Slot

	// version increments on every successful reload, giving operators a
	// cheap way to confirm a reload actually landed.
	version *versionCounter
}

// newDebugServer returns an *http.Server listening on addr, serving /debug
// and /metrics. It does not start serving; call Serve in a goroutine.
func newDebugServer(logger *slog.Logger, slot *engine.Slot, version *versionCounter, addr string) (srv *http.Server) {
	ds := &debugServer{logger: logger, slot: slot, version: version}

	mux := http.NewServeMux()
	mux.Handle("/debug", gziphandler.GzipHandler(http.HandlerFunc(ds.handleStatus)))
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (ds *debugServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	cf := ds.slot.Acquire()
	defer cf.Release()

	resp := statusResponse{
		ConfigVersion:   ds.version.Load(),
		Refcount:        cf.Refcount(),
		HasStreamFilter: cf.HasStreamFilter(),
		HasFileFilter:   cf.HasFileFilter(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		ds.logger.ErrorContext(r.Context(), "writing status response", slogutil.KeyError, err)
	}
}

// shutdownDebugServer closes srv gracefully, logging any error.
func shutdownDebugServer(ctx context.Context, logger *slog.Logger, srv *http.Server) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorContext(ctx, "shutting down debug server", slogutil.KeyError, err)
	}
}
