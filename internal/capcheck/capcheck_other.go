//go:build !linux

package capcheck

// haveNetAdmin always reports false: conntrack mark-setting is a Linux-only
// capability, see [internal/netverdict]'s non-Linux stub.
func haveNetAdmin() (ok bool) {
	return false
}
