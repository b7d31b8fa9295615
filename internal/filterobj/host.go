package filterobj

import (
	"context"
	"strings"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
	"golang.org/x/net/publicsuffix"
)

// HostFilter matches a request's host against a configured set of
// hostnames, each of which also blocks every subdomain of its registrable
// (eTLD+1) domain.  It is grounded on the host-matching logic in
// AdGuardHome's internal/filtering package (matchHost/CheckHostRules),
// adapted from DNS-name matching to HTTP Host-header matching.
type HostFilter struct {
	Base

	exact map[string]struct{}
	bases map[string]struct{}
}

// NewHostFilter constructs a HostFilter from a <FilterObject type="host">
// node.  Children are <Host value="example.com"/> elements; each value is
// matched exactly and by registrable-domain suffix.
func NewHostFilter(node ConfigNode) (fo FilterObject, err error) {
	act, err := hitAction(node)
	if err != nil {
		return nil, err
	}

	f := &HostFilter{
		Base:  NewBase(node.ID(), "host", act),
		exact: map[string]struct{}{},
		bases: map[string]struct{}{},
	}

	for _, child := range node.Children() {
		if child.Name() != "Host" {
			continue
		}

		value, verr := cfgutil.RequireAttr(child, "value")
		if verr != nil {
			return nil, verr
		}

		value = strings.ToLower(strings.TrimSpace(value))
		f.exact[value] = struct{}{}

		base, icErr := publicsuffix.EffectiveTLDPlusOne(value)
		if icErr == nil {
			f.bases[base] = struct{}{}
		}
	}

	return f, nil
}

// Capabilities implements [FilterObject].
func (f *HostFilter) Capabilities() (c Capability) {
	return CapRequestStart | CapRequestFilter
}

// RequestStart implements [FilterObject].  It is a no-op hook point kept for
// symmetry with filters that do warm per-request caches on start.
func (f *HostFilter) RequestStart(context.Context, *httpreq.Request) {}

// RequestFilter implements [FilterObject].
func (f *HostFilter) RequestFilter(_ context.Context, req *httpreq.Request) (a action.Action, err error) {
	host := strings.ToLower(req.Host)
	if host == "" {
		return action.Nomatch, nil
	}

	if _, ok := f.exact[host]; ok {
		return f.HitValue(), nil
	}

	base, icErr := publicsuffix.EffectiveTLDPlusOne(host)
	if icErr == nil {
		if _, ok := f.bases[base]; ok {
			return f.HitValue(), nil
		}
	}

	return action.Nomatch, nil
}
