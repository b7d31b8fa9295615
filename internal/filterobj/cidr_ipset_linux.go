//go:build linux

package filterobj

import (
	"fmt"
	"net/netip"

	"github.com/digineo/go-ipset/v2"
	"github.com/mdlayher/netlink"
	"github.com/ti-mo/netfilter"
)

// ipsetChecker checks IP membership against a kernel ipset over netfilter,
// adapted from internal/aghnet/ipset_linux.go's dial/query pattern: that
// file resolves a domain to an ipset by name and adds resolved addresses to
// it, where this filter instead tests an already-populated ipset for
// membership of the request's remote address.
type ipsetChecker struct {
	name   string
	v4, v6 ipsetConn
}

// ipsetConn is the subset of *ipset.Conn this filter needs, narrowed to an
// interface so tests can substitute a fake.
type ipsetConn interface {
	Test(setname string, entry *ipset.Entry) (bool, error)
	Close() error
}

// newIpsetChecker dials netfilter and returns a checker that tests
// membership of name for both address families.
func newIpsetChecker(name string) (c *ipsetChecker, err error) {
	v4, err := ipset.Dial(netfilter.ProtoIPv4, &netlink.Config{})
	if err != nil {
		return nil, fmt.Errorf("dialing v4: %w", err)
	}

	v6, err := ipset.Dial(netfilter.ProtoIPv6, &netlink.Config{})
	if err != nil {
		_ = v4.Close()

		return nil, fmt.Errorf("dialing v6: %w", err)
	}

	return &ipsetChecker{name: name, v4: v4, v6: v6}, nil
}

// Contains implements [membershipChecker].
func (c *ipsetChecker) Contains(addr netip.Addr) (ok bool) {
	conn := c.v4
	if addr.Is6() && !addr.Is4In6() {
		conn = c.v6
	}

	found, err := conn.Test(c.name, &ipset.Entry{IP: addr.AsSlice()})
	if err != nil {
		// A netfilter query error means "don't know", which this filter
		// treats the same as "not a member" — the engine's policy for a
		// filter callback's internal error is to self-log and report no
		// hit, per spec.md §7.
		return false
	}

	return found
}

// Close implements [Closer].
func (c *ipsetChecker) Close() (err error) {
	err1 := c.v4.Close()
	err2 := c.v6.Close()
	if err1 != nil {
		return err1
	}

	return err2
}
