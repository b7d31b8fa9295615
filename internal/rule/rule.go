// Package rule implements the rule type the content-filtering engine
// evaluates: a group matrix of filter-object references ANDed across groups
// and ORed within a group, plus the metadata a match carries into the log
// and the netverdict adapter.
package rule

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// MaxFilterGroups is the number of group slots a rule's matrix provides,
// matching the source's fixed-size group table.
const MaxFilterGroups = 8

// ErrGroupOutOfRange is returned by [Rule.AddFilter] when the group index is
// not in [0, MaxFilterGroups).  The loader treats this as a fatal
// configuration error.
const ErrGroupOutOfRange errors.Error = "filter group index out of range"

// Rule is one entry in a ContentFilter's rule list: an action to report on
// match, logging/notification flags, a connection mark, and the group
// matrix that decides whether the rule matches a request.
type Rule struct {
	id      uint32
	action  action.Action
	comment string
	log     bool
	notify  bool
	mark    uint32
	mask    uint32
	hasMark bool

	// groups holds up to MaxFilterGroups slots, each an ordered set of
	// filter-object references.  A nil slot is empty and is skipped by
	// Verdict.
	groups [MaxFilterGroups][]filterobj.FilterObject
}

// New returns a rule with the given id and action and an all-ones mask, per
// spec.md §3's "mask defaults to all-ones" default.
func New(id uint32, a action.Action) (r *Rule) {
	return &Rule{id: id, action: a, mask: ^uint32(0)}
}

// RuleID implements [httpreq.MatchedRule].
func (r *Rule) RuleID() (id uint32) { return r.id }

// ShouldLog implements [httpreq.MatchedRule].
func (r *Rule) ShouldLog() (ok bool) { return r.log }

// ShouldNotify implements [httpreq.MatchedRule].
func (r *Rule) ShouldNotify() (ok bool) { return r.notify }

// Mark implements [httpreq.MatchedRule].
func (r *Rule) Mark() (mark, mask uint32) { return r.mark, r.mask }

// Action returns the verdict this rule reports on a match.
func (r *Rule) Action() (a action.Action) { return r.action }

// Comment returns the rule's configured comment, for display/debugging.
func (r *Rule) Comment() (c string) { return r.comment }

// SetAction sets the verdict this rule reports on a match.
func (r *Rule) SetAction(a action.Action) { r.action = a }

// SetComment sets the rule's free-text comment.
func (r *Rule) SetComment(c string) { r.comment = c }

// SetLog sets whether a match on this rule produces a log line.
func (r *Rule) SetLog(log bool) { r.log = log }

// SetNotify sets whether a match on this rule produces a notification.
func (r *Rule) SetNotify(notify bool) { r.notify = notify }

// SetMark sets the connection mark this rule applies on match.  mask
// defaults to all-ones if never set.
func (r *Rule) SetMark(mark uint32) {
	r.mark, r.hasMark = mark, true
}

// SetMask sets the connection-mark mask this rule applies on match.
func (r *Rule) SetMask(mask uint32) {
	r.mask = mask
}

// HasMark reports whether a mark was ever configured on this rule.
func (r *Rule) HasMark() (ok bool) { return r.hasMark }

// AddFilter appends fo to the given group.  It returns [ErrGroupOutOfRange]
// if group is not a valid slot index; the loader treats that as fatal
// per spec.md §7.
func (r *Rule) AddFilter(group int, fo filterobj.FilterObject) (err error) {
	if group < 0 || group >= MaxFilterGroups {
		return fmt.Errorf("group %d: %w", group, ErrGroupOutOfRange)
	}

	r.groups[group] = append(r.groups[group], fo)

	return nil
}

// ContainsFilter reports whether fo is referenced by this rule, and the
// group it was found in.  It is a linear search, matching spec.md §4.5.
func (r *Rule) ContainsFilter(fo filterobj.FilterObject) (ok bool, group int) {
	for g, filters := range r.groups {
		for _, f := range filters {
			if f.ID() == fo.ID() {
				return true, g
			}
		}
	}

	return false, -1
}

// Verdict evaluates this rule against req.  Per spec.md §4.5: for every
// non-empty group, at least one filter must return a non-nomatch
// request_filter verdict; empty groups are skipped; a rule with no groups
// at all never matches.
func (r *Rule) Verdict(ctx context.Context, req *httpreq.Request) (a action.Action) {
	anyGroup := false

	for _, filters := range r.groups {
		if len(filters) == 0 {
			continue
		}

		anyGroup = true

		if !groupHits(ctx, req, filters) {
			return action.Nomatch
		}
	}

	if !anyGroup {
		return action.Nomatch
	}

	return r.action
}

// groupHits reports whether any filter in the group returns a non-nomatch
// request_filter verdict, in group order, stopping at the first hit.
// Filters without the request_filter capability default to nomatch via
// [filterobj.Base], so this is safe to call unconditionally.
func groupHits(ctx context.Context, req *httpreq.Request, filters []filterobj.FilterObject) (ok bool) {
	for _, f := range filters {
		a, err := f.RequestFilter(ctx, req)
		if err != nil {
			// A filter callback's internal error is absorbed here per
			// spec.md §7: the filter is expected to have self-logged, and
			// the engine treats the call as a non-hit.
			continue
		}

		if a.IsMatch() {
			return true
		}
	}

	return false
}
