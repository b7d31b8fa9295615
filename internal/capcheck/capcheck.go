// Package capcheck reports whether this process holds the Linux capability
// the conntrack mark-setting adapter needs, the same ambient-capability
// check AdGuardHome's internal/aghos runs before trying to bind a
// privileged port, narrowed to CAP_NET_ADMIN since that is what a conntrack
// netlink update requires instead.
package capcheck

// HaveNetAdmin reports whether this process can issue conntrack mark
// updates: either it holds CAP_NET_ADMIN in its ambient set, or it is
// running as root. On non-Linux platforms it always returns false, since
// the conntrack marker itself is unavailable there.
func HaveNetAdmin() (ok bool) {
	return haveNetAdmin()
}
