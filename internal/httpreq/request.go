// Package httpreq defines the subset of HTTP request/response state the
// content-filtering engine reads and writes.  The full request object,
// reassembled from the diverted packet stream, lives in the collaborator
// that owns TCP reassembly and HTTP parsing; this package only describes the
// projection the engine is allowed to touch.
package httpreq

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MatchedRule is the subset of a matched rule's state that the logger and
// the netverdict adapter need.  It is implemented by *rule.Rule; it is
// defined here, at the point of use, so that this package does not import
// the rule package.
type MatchedRule interface {
	// RuleID returns the rule's configured id.
	RuleID() uint32

	// ShouldLog reports whether the rule requests a log line on match.
	ShouldLog() bool

	// ShouldNotify reports whether the rule requests a notification on
	// match.
	ShouldNotify() bool

	// Mark returns the connection mark and mask the rule wants applied.
	Mark() (mark, mask uint32)

	// HasMark reports whether a mark was ever configured on the rule, as
	// opposed to Mark returning its zero value because none was set.
	HasMark() bool
}

// Request is the engine's view of one in-flight HTTP request/response flow.
// The engine never mutates any field besides RuleMatched.
type Request struct {
	// ruleMatched holds the rule that produced the first non-nomatch
	// verdict for this request, if any.  It is set at most once, by the
	// engine, and may be read concurrently by the logger at teardown.
	ruleMatched atomic.Pointer[MatchedRule]

	// ID correlates this request's log lines and metrics across the
	// filter-object callbacks invoked for it. It is generated once, by
	// [New], the same way the teacher mints a rule-list UID: with
	// [uuid.NewV7] so IDs sort roughly in creation order.
	ID uuid.UUID

	// URL is the request's full URL as reassembled from the HTTP stream.
	URL string

	// Host is the request's Host header value.
	Host string

	// RemoteAddr is the client's address, used by IP/CIDR filter objects
	// and by the netverdict adapter when applying a connection mark.
	RemoteAddr netip.Addr

	// StartTime is when the engine first observed this request.
	StartTime time.Time

	// ContentLength is the declared response body length, or -1 if
	// unknown.
	ContentLength int64

	// ContentReceived is the number of response body bytes streamed so
	// far.
	ContentReceived int64

	// scratchMu guards scratch.
	scratchMu sync.Mutex

	// scratch holds per-filter, per-request state for stream_filter
	// implementations that accumulate bytes across chunk calls (a hash
	// state, a partial-match buffer).  Chunks for one request arrive in
	// order on one goroutine, but the map itself is guarded anyway since a
	// filter may legitimately be invoked from the stream goroutine while
	// the logger reads other fields from a different one.
	scratch map[uint32]any

	// bodyMu guards body.
	bodyMu sync.Mutex

	// body accumulates the response bytes seen so far, for file_filter
	// implementations (AV scanning) that need the complete body rather
	// than a per-chunk view.  The queue-reader collaborator appends to it
	// via [Request.AppendBody] as chunks arrive; the engine itself never
	// writes it.
	body []byte
}

// New returns a Request with a freshly minted [Request.ID] and StartTime set
// to now. The queue-reader collaborator that reassembles a flow off the
// wire is expected to build its projection this way rather than with a bare
// struct literal, so every request carries a correlation id.
func New() (r *Request) {
	return &Request{
		ID:        uuid.Must(uuid.NewV7()),
		StartTime: time.Now(),
	}
}

// Scratch returns the filter-private state stored under filterID, and
// whether it was present.
func (r *Request) Scratch(filterID uint32) (v any, ok bool) {
	r.scratchMu.Lock()
	defer r.scratchMu.Unlock()

	v, ok = r.scratch[filterID]

	return v, ok
}

// SetScratch stores filter-private state under filterID, overwriting any
// previous value.
func (r *Request) SetScratch(filterID uint32, v any) {
	r.scratchMu.Lock()
	defer r.scratchMu.Unlock()

	if r.scratch == nil {
		r.scratch = make(map[uint32]any, 1)
	}

	r.scratch[filterID] = v
}

// SetRuleMatched records the rule that matched, if it has not already been
// set.  It reports whether it performed the set.
func (r *Request) SetRuleMatched(mr MatchedRule) (ok bool) {
	return r.ruleMatched.CompareAndSwap(nil, &mr)
}

// RuleMatched returns the rule that matched this request, or nil if none
// has matched yet.
func (r *Request) RuleMatched() (mr MatchedRule) {
	p := r.ruleMatched.Load()
	if p == nil {
		return nil
	}

	return *p
}

// Elapsed returns the wall-clock time since StartTime.
func (r *Request) Elapsed() (d time.Duration) {
	return time.Since(r.StartTime)
}

// AppendBody appends chunk to the request's accumulated body. The
// queue-reader collaborator calls this once per chunk as the response
// streams in, so that by the time a file_filter runs, the full body is
// available to it.
func (r *Request) AppendBody(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()

	r.body = append(r.body, chunk...)
}

// Body returns the request's accumulated body bytes, as built up by calls to
// AppendBody. The returned slice is owned by the Request and must not be
// retained past the call.
func (r *Request) Body() (body []byte) {
	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()

	return r.body
}
