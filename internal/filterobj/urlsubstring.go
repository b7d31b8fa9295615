package filterobj

import (
	"context"
	"strings"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// URLSubstringFilter hits when the request URL contains any of a configured
// set of literal substrings.
type URLSubstringFilter struct {
	Base

	substrings []string
}

// NewURLSubstringFilter constructs a URLSubstringFilter from a
// <FilterObject type="urlsubstring"> node.  Children are
// <Substring value="/ads/"/> elements.
func NewURLSubstringFilter(node ConfigNode) (fo FilterObject, err error) {
	act, err := hitAction(node)
	if err != nil {
		return nil, err
	}

	f := &URLSubstringFilter{
		Base: NewBase(node.ID(), "urlsubstring", act),
	}

	for _, child := range node.Children() {
		if child.Name() != "Substring" {
			continue
		}

		value, verr := cfgutil.RequireAttr(child, "value")
		if verr != nil {
			return nil, verr
		}

		f.substrings = append(f.substrings, value)
	}

	return f, nil
}

// Capabilities implements [FilterObject].
func (f *URLSubstringFilter) Capabilities() (c Capability) {
	return CapRequestFilter
}

// RequestFilter implements [FilterObject].
func (f *URLSubstringFilter) RequestFilter(_ context.Context, req *httpreq.Request) (a action.Action, err error) {
	for _, sub := range f.substrings {
		if strings.Contains(req.URL, sub) {
			return f.HitValue(), nil
		}
	}

	return action.Nomatch, nil
}
