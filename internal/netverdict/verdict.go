// Package netverdict adapts an engine [action.Action] to the two downstream
// effects a matched verdict can have on the diverted packet: telling the
// packet-queue collaborator whether to accept or drop the packet, and, when
// the matched rule carries a connection mark, tagging the connection over
// netfilter so that downstream iptables/nftables rules can act on it.
//
// The queue-verdict call itself (the `nfq_set_verdict`-equivalent) has no
// concrete collaborator in this repository: the component that dequeues
// packets and owns their queue/packet ids is external to this spec, so
// QueueVerdictFunc is the seam a real integration plugs into. The
// conntrack mark-set call, by contrast, is fully implemented.
package netverdict

import (
	"context"
	"fmt"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// QueueVerdict is the two-valued decision a packet-queue collaborator
// understands, distinct from the richer [action.Action] the engine
// produces: every non-accept action (reject, virus, phishing, malware)
// diverts the packet the same way at the queue layer.
type QueueVerdict int

// Allowed queue verdicts.
const (
	QueueAccept QueueVerdict = iota
	QueueDrop
)

// String implements the [fmt.Stringer] interface.
func (v QueueVerdict) String() (s string) {
	if v == QueueDrop {
		return "drop"
	}

	return "accept"
}

// FromAction maps an engine verdict to the queue-level decision. Only
// [action.Accept] and [action.AlwaysTrust] accept the packet; every other
// action drops it, including the default-action fallback the engine
// already resolved nomatch to.
func FromAction(a action.Action) (v QueueVerdict) {
	switch a {
	case action.Accept, action.AlwaysTrust:
		return QueueAccept
	default:
		return QueueDrop
	}
}

// QueueVerdictFunc sets the verdict for one queued packet, identified by
// the collaborator-assigned queueID/packetID pair.
type QueueVerdictFunc func(ctx context.Context, queueID, packetID uint32, v QueueVerdict) error

// MarkSetter applies a connection mark to the connection a request
// belongs to. Implemented per-platform; see mark_linux.go and
// mark_other.go.
type MarkSetter interface {
	// SetMark tags the connection from addr with mark under mask.
	SetMark(ctx context.Context, req *httpreq.Request, mark, mask uint32) error

	// Close releases the underlying netfilter connections.
	Close() error
}

// Adapter is the downward interface the engine's verdict loop calls after
// [engine.ContentFilter.RequestVerdict] or [engine.ContentFilter.FileScan]
// produces a final action for a request.
type Adapter struct {
	setVerdict QueueVerdictFunc
	marker     MarkSetter
}

// New returns an Adapter. marker may be nil, in which case [Adapter.Apply]
// skips the mark-set step entirely; this is the non-Linux and
// mark-unconfigured case.
func New(setVerdict QueueVerdictFunc, marker MarkSetter) (a *Adapter) {
	return &Adapter{setVerdict: setVerdict, marker: marker}
}

// Apply sets the queue verdict for (queueID, packetID) and, if mr carries a
// mark, tags req's connection with it. A mark-set failure is returned
// alongside any queue-verdict error via [errors.Join]-style wrapping is not
// used here deliberately: the two effects are independent, and a mark
// failure must never suppress the queue verdict the caller already
// computed.
func (a *Adapter) Apply(ctx context.Context, req *httpreq.Request, mr httpreq.MatchedRule, queueID, packetID uint32, verdict action.Action) (err error) {
	qv := FromAction(verdict)
	if verr := a.setVerdict(ctx, queueID, packetID, qv); verr != nil {
		err = fmt.Errorf("setting queue verdict: %w", verr)
	}

	if a.marker == nil || mr == nil {
		return err
	}

	if !mr.HasMark() {
		return err
	}

	mark, mask := mr.Mark()

	if merr := a.marker.SetMark(ctx, req, mark, mask); merr != nil {
		if err != nil {
			return fmt.Errorf("%w (also: setting conn mark: %w)", err, merr)
		}

		return fmt.Errorf("setting conn mark: %w", merr)
	}

	return err
}
