//go:build linux

package netverdict

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/mdlayher/netlink"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/ti-mo/netfilter"
)

// Netfilter conntrack constants this file needs. These mirror
// include/uapi/linux/netfilter/nfnetlink_conntrack.h; they are not exposed
// by ti-mo/netfilter, which only encodes the generic netfilter header and
// attribute framing, so the conntrack-specific message and attribute type
// numbers are reproduced here the same way the kernel headers define them.
const (
	ctMsgNew = 0x00 // IPCTNL_MSG_CT_NEW

	ctaTupleOrig = 1  // CTA_TUPLE_ORIG
	ctaTupleIP   = 1  // CTA_TUPLE_IP
	ctaIPv4Src   = 1  // CTA_IP_V4_SRC
	ctaIPv6Src   = 3  // CTA_IP_V6_SRC
	ctaMark      = 8  // CTA_MARK
	ctaMarkMask  = 21 // CTA_MARK_MASK
)

// ctConn is the subset of *netfilter.Conn this file needs, narrowed to an
// interface the same way internal/aghnet/ipset_linux.go narrows
// *ipset.Conn to ipsetConn, so tests can substitute a fake.
type ctConn interface {
	Execute(nfh netfilter.Header, attrs ...netfilter.Attribute) ([]netlink.Message, error)
	Close() error
}

// ctDialer creates a ctConn for one address family, mirroring the
// aghnet ipsetDialer seam.
type ctDialer func(family netfilter.ProtoFamily) (conn ctConn, err error)

// conntrackMarker implements [MarkSetter] by sending a CTA_MARK update over
// netfilter's conntrack netlink subsystem, adapted from
// internal/aghnet/ipset_linux.go's per-family dial pattern: that file opens
// one *ipset.Conn per address family up front, this one does the same for
// conntrack updates.
type conntrackMarker struct {
	dial   ctDialer
	v4, v6 ctConn
}

// NewConntrackMarker dials netfilter for both address families and returns
// a [MarkSetter] that updates connection marks over conntrack.
func NewConntrackMarker() (m *conntrackMarker, err error) {
	return newConntrackMarkerWithDialer(defaultCTDial)
}

// defaultCTDial is the default netfilter dialing function for the
// conntrack subsystem, mirroring the ipset.Dial(family, config) shape
// internal/aghnet/ipset_linux.go's defaultDial uses.
func defaultCTDial(family netfilter.ProtoFamily) (conn ctConn, err error) {
	c, err := netfilter.Dial(family, &netlink.Config{})
	if err != nil {
		return nil, err
	}

	return c, nil
}

func newConntrackMarkerWithDialer(dial ctDialer) (m *conntrackMarker, err error) {
	v4, err := dial(netfilter.ProtoIPv4)
	if err != nil {
		return nil, fmt.Errorf("dialing conntrack v4: %w", err)
	}

	v6, err := dial(netfilter.ProtoIPv6)
	if err != nil {
		_ = v4.Close()

		return nil, fmt.Errorf("dialing conntrack v6: %w", err)
	}

	return &conntrackMarker{dial: dial, v4: v4, v6: v6}, nil
}

// SetMark implements [MarkSetter]. It identifies the connection by its
// source address only: this adapter has no visibility into the original
// flow's destination or port, since the engine's [httpreq.Request] carries
// only the client's remote address. A conntrack lookup keyed on source
// address alone can match more than one flow from the same host; that is
// an accepted imprecision of this adapter, not a kernel limitation.
func (m *conntrackMarker) SetMark(ctx context.Context, req *httpreq.Request, mark, mask uint32) (err error) {
	addr := req.RemoteAddr
	if !addr.IsValid() {
		return fmt.Errorf("request has no remote address")
	}

	conn := m.v4
	family := netfilter.ProtoIPv4
	if addr.Is6() && !addr.Is4In6() {
		conn, family = m.v6, netfilter.ProtoIPv6
	}

	ipAttr, err := sourceIPAttribute(addr)
	if err != nil {
		return err
	}

	markBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(markBuf, mark)

	maskBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(maskBuf, mask)

	nfh := netfilter.Header{
		Family:      family,
		SubsystemID: netfilter.NFSubsysCTNetlink,
		MessageType: netfilter.MessageType(ctMsgNew),
		Flags:       netlink.Request | netlink.Acknowledge,
	}

	_, err = conn.Execute(nfh,
		netfilter.Attribute{
			Type: ctaTupleOrig,
			Nested: true,
			Children: []netfilter.Attribute{
				{Type: ctaTupleIP, Nested: true, Children: []netfilter.Attribute{ipAttr}},
			},
		},
		netfilter.Attribute{Type: ctaMark, Data: markBuf},
		netfilter.Attribute{Type: ctaMarkMask, Data: maskBuf},
	)
	if err != nil {
		return fmt.Errorf("updating conntrack mark: %w", err)
	}

	return nil
}

// sourceIPAttribute builds the CTA_IP_V4_SRC or CTA_IP_V6_SRC attribute for
// addr.
func sourceIPAttribute(addr netip.Addr) (attr netfilter.Attribute, err error) {
	if addr.Is4() || addr.Is4In6() {
		a4 := addr.As4()

		return netfilter.Attribute{Type: ctaIPv4Src, Data: a4[:]}, nil
	}

	a16 := addr.As16()

	return netfilter.Attribute{Type: ctaIPv6Src, Data: a16[:]}, nil
}

// Close implements [MarkSetter].
func (m *conntrackMarker) Close() (err error) {
	err1 := m.v4.Close()
	err2 := m.v6.Close()
	if err1 != nil {
		return err1
	}

	return err2
}
