// Package filterobj implements the capability-based filter-object plug-in
// model: the uniform interface every matcher satisfies, the registry that
// maps a configured type name to a constructor, and the ordered, id-indexed
// list a [*ContentFilter] owns.
package filterobj

import (
	"context"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// Capability is a bitmask describing which optional callbacks a filter
// object implements.  It replaces the source's table of nullable function
// pointers.
type Capability uint8

// Capability bits.
const (
	// CapRequestStart marks that the filter wants a request_start
	// notification.
	CapRequestStart Capability = 1 << iota

	// CapRequestFilter marks that the filter can produce a pre-body
	// verdict.
	CapRequestFilter

	// CapStreamFilter marks that the filter can inspect streamed body
	// chunks.
	CapStreamFilter

	// CapFileFilter marks that the filter can inspect a fully-buffered
	// response body.
	CapFileFilter
)

// Has reports whether c contains every bit in want.
func (c Capability) Has(want Capability) (ok bool) {
	return c&want == want
}

// ConfigNode is the minimal view of a configuration fragment a filter
// constructor needs.  It is satisfied by the config package's element type;
// defining it here (at the point of use) lets this package avoid importing
// config, which in turn imports this package to resolve filter types.
type ConfigNode interface {
	// ID returns the filter object's configured numeric id.
	ID() uint32

	// Attr returns the named attribute's value and whether it was present.
	Attr(name string) (value string, ok bool)

	// Children returns the sub-elements of this node, in document order.
	Children() []ConfigNode

	// Name returns the element's tag name.
	Name() string
}

// FilterObject is a single matcher instance, sharable across rules within
// one [engine.ContentFilter].  Filter objects are constructed when a
// configuration is loaded and are immutable after that: any mutable,
// per-request state belongs on the request or in a scratch block the filter
// keys by request identity, never on the filter itself.
type FilterObject interface {
	// ID returns the filter's configured id, unique within one
	// configuration.
	ID() uint32

	// TypeName returns the plug-in type name this instance was
	// constructed from.
	TypeName() string

	// Capabilities returns the set of optional callbacks this instance
	// implements.
	Capabilities() Capability

	// Mark returns the connection mark and mask configured for this
	// filter, and whether a mark was configured at all.
	Mark() (mark, mask uint32, hasMark bool)

	// RequestStart notifies the filter that a new request has begun.  Its
	// return value is advisory; the engine never short-circuits on it.
	RequestStart(ctx context.Context, req *httpreq.Request)

	// RequestFilter returns a synchronous, pre-body verdict for req, or
	// [action.Nomatch] if this filter does not hit.
	RequestFilter(ctx context.Context, req *httpreq.Request) (a action.Action, err error)

	// StreamFilter is invoked once per body chunk, in byte-offset order,
	// until it returns a non-nomatch verdict, the stream ends, or the
	// request is cancelled.  Filters that need to accumulate bytes across
	// calls own that buffer internally.
	StreamFilter(ctx context.Context, req *httpreq.Request, chunk []byte) (a action.Action, err error)

	// FileFilter is invoked at most once per request, after the full
	// response body is available.
	FileFilter(ctx context.Context, req *httpreq.Request) (a action.Action, err error)
}

// Closer is implemented by filter objects that hold OS resources (a
// scanning-daemon connection, an ipset handle) that must be released when
// the owning [engine.ContentFilter] is destroyed.  It is optional: the
// owning [List] checks for it with a type assertion rather than requiring
// every filter object to implement it.
type Closer interface {
	Close() error
}

// Base is embedded by concrete filter objects to supply "not my capability"
// defaults for every optional callback, mirroring the source's null
// function-pointer table without requiring every filter to repeat
// boilerplate.
type Base struct {
	id       uint32
	typeName string
	hitValue action.Action
	mark     uint32
	mask     uint32
	hasMark  bool
}

// NewBase returns a Base with the given id, type name, and the action this
// filter reports on a hit (see [FilterObject]'s doc comment on the verdict
// carried by a hit).
func NewBase(id uint32, typeName string, hitValue action.Action) (b Base) {
	return Base{id: id, typeName: typeName, hitValue: hitValue}
}

// HitValue returns the action this filter reports when it hits.
func (b *Base) HitValue() (a action.Action) { return b.hitValue }

// ID implements [FilterObject].
func (b *Base) ID() (id uint32) { return b.id }

// TypeName implements [FilterObject].
func (b *Base) TypeName() (name string) { return b.typeName }

// Capabilities implements [FilterObject].  Concrete filters that implement
// any optional callback must override this method.
func (b *Base) Capabilities() (c Capability) { return 0 }

// SetMark configures the connection mark and mask this filter applies.
func (b *Base) SetMark(mark, mask uint32) {
	b.mark, b.mask, b.hasMark = mark, mask, true
}

// Mark implements [FilterObject].
func (b *Base) Mark() (mark, mask uint32, hasMark bool) { return b.mark, b.mask, b.hasMark }

// RequestStart implements [FilterObject] as a no-op.
func (b *Base) RequestStart(context.Context, *httpreq.Request) {}

// RequestFilter implements [FilterObject] as a permanent non-match.
func (b *Base) RequestFilter(context.Context, *httpreq.Request) (action.Action, error) {
	return action.Nomatch, nil
}

// StreamFilter implements [FilterObject] as a permanent non-match.
func (b *Base) StreamFilter(context.Context, *httpreq.Request, []byte) (action.Action, error) {
	return action.Nomatch, nil
}

// FileFilter implements [FilterObject] as a permanent non-match.
func (b *Base) FileFilter(context.Context, *httpreq.Request) (action.Action, error) {
	return action.Nomatch, nil
}
