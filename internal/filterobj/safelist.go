package filterobj

import (
	"context"
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// SafelistFilter always hits with [action.AlwaysTrust] for requests whose
// host is on an operator-maintained allowlist, letting a configuration
// express always_trust directly rather than routing it through a rule whose
// own action happens to be always_trust.
type SafelistFilter struct {
	Base

	hosts *container.MapSet[string]
}

// NewSafelistFilter constructs a SafelistFilter from a
// <FilterObject type="safelist"> node.  Children are
// <Host value="example.com"/> elements.  Any configured "action" attribute
// is ignored: this filter's hit value is always always_trust.
func NewSafelistFilter(node ConfigNode) (fo FilterObject, err error) {
	f := &SafelistFilter{
		Base:  NewBase(node.ID(), "safelist", action.AlwaysTrust),
		hosts: container.NewMapSet[string](),
	}

	for _, child := range node.Children() {
		if child.Name() != "Host" {
			continue
		}

		value, verr := cfgutil.RequireAttr(child, "value")
		if verr != nil {
			return nil, verr
		}

		f.hosts.Add(strings.ToLower(strings.TrimSpace(value)))
	}

	return f, nil
}

// Capabilities implements [FilterObject].
func (f *SafelistFilter) Capabilities() (c Capability) {
	return CapRequestFilter
}

// RequestFilter implements [FilterObject].
func (f *SafelistFilter) RequestFilter(_ context.Context, req *httpreq.Request) (a action.Action, err error) {
	if f.hosts.Has(strings.ToLower(req.Host)) {
		return f.HitValue(), nil
	}

	return action.Nomatch, nil
}
