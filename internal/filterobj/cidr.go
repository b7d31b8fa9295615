package filterobj

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// CIDRFilter matches a request's remote address against a configured set of
// IP networks.  On Linux, if the configuration names an ipset, membership is
// instead checked against that kernel ipset (see cidr_ipset_linux.go),
// adapted from internal/aghnet/ipset_linux.go; otherwise an in-process
// prefix list, in document order, is consulted.  Both backings expose the identical
// capability, so the filter-object contract does not change across
// platforms.
type CIDRFilter struct {
	Base

	membership membershipChecker
}

// membershipChecker abstracts the IP-set backing (in-process or kernel
// ipset) behind a single method so CIDRFilter itself stays platform
// independent.
type membershipChecker interface {
	Contains(addr netip.Addr) bool
}

// prefixListChecker is the portable fallback backing: a plain slice of
// prefixes checked linearly.  Configurations rarely carry more than a few
// dozen entries per filter object, so this is not worth indexing further.
type prefixListChecker struct {
	prefixes []netip.Prefix
}

// Contains implements [membershipChecker].
func (c *prefixListChecker) Contains(addr netip.Addr) (ok bool) {
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}

// NewCIDRFilter constructs a CIDRFilter from a <FilterObject type="cidr">
// node.  Children are <Network value="203.0.113.0/24"/> elements.  If the
// node carries an "ipset" attribute, membership is checked against that
// kernel ipset instead (Linux only; see [newIpsetChecker]).
func NewCIDRFilter(node ConfigNode) (fo FilterObject, err error) {
	act, err := hitAction(node)
	if err != nil {
		return nil, err
	}

	f := &CIDRFilter{
		Base: NewBase(node.ID(), "cidr", act),
	}

	if setName, ok := node.Attr("ipset"); ok {
		f.membership, err = newIpsetChecker(setName)
		if err != nil {
			return nil, fmt.Errorf("ipset %q: %w", setName, err)
		}

		return f, nil
	}

	plc := &prefixListChecker{}
	for _, child := range node.Children() {
		if child.Name() != "Network" {
			continue
		}

		value, verr := cfgutil.RequireAttr(child, "value")
		if verr != nil {
			return nil, verr
		}

		prefix, perr := netip.ParsePrefix(value)
		if perr != nil {
			return nil, fmt.Errorf("network %q: %w", value, perr)
		}

		plc.prefixes = append(plc.prefixes, prefix)
	}

	f.membership = plc

	return f, nil
}

// Capabilities implements [FilterObject].
func (f *CIDRFilter) Capabilities() (c Capability) {
	return CapRequestFilter
}

// RequestFilter implements [FilterObject].
func (f *CIDRFilter) RequestFilter(_ context.Context, req *httpreq.Request) (a action.Action, err error) {
	if !req.RemoteAddr.IsValid() {
		return action.Nomatch, nil
	}

	if f.membership.Contains(req.RemoteAddr) {
		return f.HitValue(), nil
	}

	return action.Nomatch, nil
}

// Close implements [Closer] when the backing membership checker holds OS
// resources.
func (f *CIDRFilter) Close() (err error) {
	if c, ok := f.membership.(Closer); ok {
		return c.Close()
	}

	return nil
}
