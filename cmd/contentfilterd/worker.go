package main

import (
	"context"
	"log/slog"

	"github.com/qveil/contentfilter/internal/engine"
	"github.com/qveil/contentfilter/internal/filterlog"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/netverdict"
)

// QueueReader is the upward seam this process needs from the diverted
// packet-queue collaborator named as out-of-scope in spec.md §1: something
// that hands this process one reassembled HTTP request/response flow at a
// time and lets it drive that flow through the evaluation entry-points.
// The real reader owns TCP reassembly and HTTP parsing; it is not part of
// this module.
type QueueReader interface {
	// Next blocks until a flow is ready for evaluation, or ctx is done.
	Next(ctx context.Context) (f *Flow, err error)
}

// Flow is one HTTP request/response flow as the queue reader hands it to
// this process: the engine-visible request projection, the diverted
// packet's queue/packet id pair for the eventual verdict call, and the
// means to pull streamed body chunks and, once available, the whole body.
type Flow struct {
	Req      *httpreq.Request
	QueueID  uint32
	PacketID uint32

	// Chunks returns the next response-body byte range in offset order. A
	// nil chunk with ok true is the end-of-stream signal — filters that
	// accumulate bytes across calls (content-hash, for one) finalize on
	// it — and must be delivered exactly once; ok false means the stream
	// already ended and Chunks must not be called again. It is owned by
	// the queue-reader collaborator.
	Chunks func(ctx context.Context) (chunk []byte, ok bool)
}

// noopQueueReader is the stub reader this process starts with: it never
// produces a flow, only waiting on ctx. It exists so the bootstrap has a
// real, working queue-verdict loop to start even though no packet-queue
// collaborator ships in this module, per SPEC_FULL's "a stub reader for
// this spec, since the real reader is an external collaborator."
type noopQueueReader struct{}

// Next implements [QueueReader].
func (noopQueueReader) Next(ctx context.Context) (f *Flow, err error) {
	<-ctx.Done()

	return nil, ctx.Err()
}

// runWorker drains reader, driving each flow through request_start,
// request_verdict, filter_stream (per chunk), file_scan (once the body is
// fully buffered, if any filter needs it), and logging at teardown — the
// ordering spec.md §5 guarantees within one request. It runs until ctx is
// cancelled.
func runWorker(
	ctx context.Context,
	logger *slog.Logger,
	slot *engine.Slot,
	reader QueueReader,
	verdictAdapter *netverdict.Adapter,
	requestLog *filterlog.Logger,
) {
	for {
		flow, err := reader.Next(ctx)
		if err != nil {
			return
		}

		handleFlow(ctx, logger, slot, flow, verdictAdapter, requestLog)
	}
}

// handleFlow evaluates one flow against the currently published engine,
// acquiring and releasing its own reference so a concurrent reload cannot
// disturb it mid-flight, per spec.md §5.
func handleFlow(
	ctx context.Context,
	logger *slog.Logger,
	slot *engine.Slot,
	flow *Flow,
	verdictAdapter *netverdict.Adapter,
	requestLog *filterlog.Logger,
) {
	cf := slot.Acquire()
	defer cf.Release()

	req := flow.Req
	cf.RequestStart(ctx, req)

	verdict := cf.RequestVerdict(ctx, req)

	streamHit := false

	if (cf.HasStreamFilter() || cf.HasFileFilter()) && flow.Chunks != nil {
		for {
			chunk, ok := flow.Chunks(ctx)
			if !ok {
				break
			}

			req.AppendBody(chunk)

			if v := cf.FilterStream(ctx, req, chunk); v.IsMatch() {
				verdict = v
				streamHit = true

				break
			}

			if chunk == nil {
				break
			}
		}
	}

	if cf.HasFileFilter() && !streamHit {
		if v := cf.FileScan(ctx, req); v.IsMatch() {
			verdict = v
		}
	}

	if err := verdictAdapter.Apply(ctx, req, req.RuleMatched(), flow.QueueID, flow.PacketID, verdict); err != nil {
		logger.ErrorContext(ctx, "applying verdict", "queue_id", flow.QueueID, "error", err)
	}

	requestLog.LogRequest(ctx, req, verdict)
}
