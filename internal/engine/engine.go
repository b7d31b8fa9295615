// Package engine implements the ContentFilter evaluation engine: a
// reference-counted, load-once, swap-on-reload bundle of a rule list and
// the filter objects it references.
package engine

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/metrics"
	"github.com/qveil/contentfilter/internal/rule"
)

// ErrNegativeGroupCount signals a programmer-contract violation: a rule
// list containing a nil entry, or a rule whose group slice has negative
// length, both of which are impossible to produce through the loader and so
// indicate a bug rather than a configuration error.
const ErrNegativeGroupCount errors.Error = "rule list contains an invalid rule"

// ContentFilter is the evaluation engine for one loaded configuration: an
// ordered rule list, the filter objects those rules reference, a default
// action, and the two capability bits computed once at [ContentFilter.Freeze].
//
// A ContentFilter is reference-counted rather than garbage-collected so
// that destruction (closing owned filters) happens deterministically the
// moment the last in-flight request releases it, matching spec.md §5.
type ContentFilter struct {
	logger *slog.Logger
	m      *metrics.Metrics

	defaultAction action.Action
	rules         []*rule.Rule
	filters       *filterobj.List

	hasStreamFilter bool
	hasFileFilter   bool
	frozen          bool

	refs atomic.Int64
}

// New returns an empty, mutable ContentFilter with one reference already
// held by the caller (the loader).  defaultAction is returned by
// RequestVerdict when no rule matches.
func New(logger *slog.Logger, m *metrics.Metrics, defaultAction action.Action) (cf *ContentFilter) {
	cf = &ContentFilter{
		logger:        logger,
		m:             m,
		defaultAction: defaultAction,
		filters:       filterobj.NewList(),
	}
	cf.refs.Store(1)

	return cf
}

// AddFilter registers fo with this engine's owned filter list.  It must be
// called before [ContentFilter.Freeze].
func (cf *ContentFilter) AddFilter(fo filterobj.FilterObject) {
	cf.filters.Append(fo)
}

// FindFilter returns the owned filter object with the given id, if any.
func (cf *ContentFilter) FindFilter(id uint32) (fo filterobj.FilterObject, ok bool) {
	return cf.filters.FindByID(id)
}

// AddRule appends r to the rule list, in evaluation order.  It must be
// called before [ContentFilter.Freeze].
func (cf *ContentFilter) AddRule(r *rule.Rule) {
	cf.rules = append(cf.rules, r)
}

// Freeze computes has_stream_filter/has_file_filter by visiting the owned
// filter list once, and marks the engine as load-complete.  Per spec.md
// §4.6 invariant 3, these bits are immutable after this call.
func (cf *ContentFilter) Freeze() {
	for _, fo := range cf.filters.All() {
		caps := fo.Capabilities()
		if caps.Has(filterobj.CapStreamFilter) {
			cf.hasStreamFilter = true
		}
		if caps.Has(filterobj.CapFileFilter) {
			cf.hasFileFilter = true
		}
	}

	cf.frozen = true
}

// HasStreamFilter reports whether any owned filter implements stream_filter.
func (cf *ContentFilter) HasStreamFilter() (ok bool) { return cf.hasStreamFilter }

// HasFileFilter reports whether any owned filter implements file_filter.
func (cf *ContentFilter) HasFileFilter() (ok bool) { return cf.hasFileFilter }

// Acquire increments the reference count and returns the new count.
// Callers must pair every Acquire with a [ContentFilter.Release].
func (cf *ContentFilter) Acquire() (n int64) {
	return cf.refs.Add(1)
}

// Fingerprint is a comparable snapshot of the loaded configuration's shape:
// its default action, rule ids, and filter ids and types.  [*reload.Watcher]
// compares it with [cmp.Equal] against the engine it last published and
// logs whether the shape changed; it publishes the new engine either way,
// since the snapshot does not cover filter contents such as host lists.
type Fingerprint struct {
	DefaultAction action.Action
	RuleIDs       []uint32
	FilterTypes   []FilterFingerprint
}

// FilterFingerprint is one owned filter object's identity, for
// [Fingerprint].
type FilterFingerprint struct {
	ID       uint32
	TypeName string
}

// Fingerprint computes a [Fingerprint] of this engine's loaded shape. It
// does not need to be called before [ContentFilter.Freeze].
func (cf *ContentFilter) Fingerprint() (fp Fingerprint) {
	fp.DefaultAction = cf.defaultAction

	for _, r := range cf.rules {
		fp.RuleIDs = append(fp.RuleIDs, r.RuleID())
	}

	for _, fo := range cf.filters.All() {
		fp.FilterTypes = append(fp.FilterTypes, FilterFingerprint{ID: fo.ID(), TypeName: fo.TypeName()})
	}

	return fp
}

// Refcount returns the current reference count, for status reporting. It is
// advisory only: the count may change concurrently with the read.
func (cf *ContentFilter) Refcount() (n int64) {
	return cf.refs.Load()
}

// Release decrements the reference count. When it reaches zero, every owned
// filter object implementing [filterobj.Closer] is closed, deterministically
// and exactly once, matching spec.md §5's "old engine's refcount hits zero
// and it is destroyed."
func (cf *ContentFilter) Release() {
	if cf.refs.Add(-1) != 0 {
		return
	}

	if err := cf.filters.Close(); err != nil {
		cf.logger.Error("closing filter objects", slogutil.KeyError, err)
	}
}

// RequestStart fans out to every filter implementing request_start, in
// filter-list order. Per spec.md §4.6, the return value is advisory; the
// engine never short-circuits on it.
func (cf *ContentFilter) RequestStart(ctx context.Context, req *httpreq.Request) {
	for _, fo := range cf.filters.All() {
		if fo.Capabilities().Has(filterobj.CapRequestStart) {
			fo.RequestStart(ctx, req)
		}
	}
}

// RequestVerdict scans the rule list in order, evaluating each rule's
// verdict. The first rule to return a non-nomatch verdict is recorded onto
// req and its verdict returned. If no rule matches, default_action is
// returned; RequestVerdict never returns nomatch itself.
func (cf *ContentFilter) RequestVerdict(ctx context.Context, req *httpreq.Request) (a action.Action) {
	for _, r := range cf.rules {
		if r == nil {
			panic(ErrNegativeGroupCount)
		}

		v := r.Verdict(ctx, req)
		if !v.IsMatch() {
			continue
		}

		req.SetRuleMatched(r)
		cf.observeVerdict("request_verdict", v)
		cf.observeRuleHit(r)

		return v
	}

	cf.observeVerdict("request_verdict", cf.defaultAction)

	return cf.defaultAction
}

// FilterStream is a no-op returning nomatch unless HasStreamFilter. It
// invokes every stream-capable filter, in filter-list order, with chunk. If
// any filter returns a non-nomatch verdict, it finds the first rule
// referencing that filter, attaches it to req, and returns the filter's
// verdict. A hit from a filter no rule references is logged and treated as
// nomatch, per spec.md §4.6.
func (cf *ContentFilter) FilterStream(
	ctx context.Context,
	req *httpreq.Request,
	chunk []byte,
) (a action.Action) {
	if !cf.hasStreamFilter {
		return action.Nomatch
	}

	return cf.firstFilterHit(ctx, req, "filter_stream", func(fo filterobj.FilterObject) (action.Action, error) {
		if !fo.Capabilities().Has(filterobj.CapStreamFilter) {
			return action.Nomatch, nil
		}

		return fo.StreamFilter(ctx, req, chunk)
	})
}

// FileScan has the same control flow as FilterStream, but over the
// file_filter capability and without a chunk argument.
func (cf *ContentFilter) FileScan(ctx context.Context, req *httpreq.Request) (a action.Action) {
	if !cf.hasFileFilter {
		return action.Nomatch
	}

	return cf.firstFilterHit(ctx, req, "file_scan", func(fo filterobj.FilterObject) (action.Action, error) {
		if !fo.Capabilities().Has(filterobj.CapFileFilter) {
			return action.Nomatch, nil
		}

		return fo.FileFilter(ctx, req)
	})
}

// filterHit is one filter's non-nomatch verdict for a firstFilterHit call,
// together with the position of its earliest-referencing rule, which decides
// which of several simultaneous hits wins per spec.md §4.6.
type filterHit struct {
	verdict action.Action
	rule    *rule.Rule
	rulePos int
}

// firstFilterHit visits the owned filter list in filter-list order, calling
// invoke on each and collecting every non-nomatch verdict. Per spec.md §4.6,
// when more than one filter hits for the same chunk or file scan, the filter
// whose earliest-referring rule has the lowest position in the rule list
// wins; ties (two filters first referenced by the same rule) are broken by
// filter-list order. A hit whose filter no rule references is logged and
// excluded from consideration, as if it never hit.
func (cf *ContentFilter) firstFilterHit(
	ctx context.Context,
	req *httpreq.Request,
	entryPoint string,
	invoke func(fo filterobj.FilterObject) (action.Action, error),
) (a action.Action) {
	var best *filterHit

	for _, fo := range cf.filters.All() {
		start := time.Now()
		v, err := invoke(fo)
		if cf.m != nil {
			cf.m.ObserveFilterCallback(fo.TypeName(), entryPoint, time.Since(start).Seconds())
		}

		if err != nil {
			// Absorbed per spec.md §7: the filter is expected to have
			// self-logged.
			continue
		}

		if !v.IsMatch() {
			continue
		}

		r, pos, ok := cf.firstRuleReferencing(fo)
		if !ok {
			cf.logger.WarnContext(ctx, "filter hit with no referencing rule",
				"filter_id", fo.ID(), "filter_type", fo.TypeName())

			continue
		}

		// Strictly-less-than keeps whichever filter was found first, in
		// filter-list order, among ties on the same referencing rule
		// position.
		if best == nil || pos < best.rulePos {
			best = &filterHit{verdict: v, rule: r, rulePos: pos}
		}
	}

	if best == nil {
		cf.observeVerdict(entryPoint, action.Nomatch)

		return action.Nomatch
	}

	req.SetRuleMatched(best.rule)
	cf.observeVerdict(entryPoint, best.verdict)
	cf.observeRuleHit(best.rule)

	return best.verdict
}

// firstRuleReferencing returns the first rule, in rule-list order, that
// references fo in any group, along with its position in the rule list.
func (cf *ContentFilter) firstRuleReferencing(fo filterobj.FilterObject) (r *rule.Rule, pos int, ok bool) {
	for i, r := range cf.rules {
		if contains, _ := r.ContainsFilter(fo); contains {
			return r, i, true
		}
	}

	return nil, -1, false
}

func (cf *ContentFilter) observeVerdict(entryPoint string, a action.Action) {
	if cf.m != nil {
		cf.m.ObserveVerdict(entryPoint, a.String())
	}
}

func (cf *ContentFilter) observeRuleHit(r *rule.Rule) {
	if cf.m != nil {
		cf.m.ObserveRuleHit(ruleIDLabel(r.RuleID()))
	}
}

func ruleIDLabel(id uint32) (s string) {
	return strconv.FormatUint(uint64(id), 10)
}
