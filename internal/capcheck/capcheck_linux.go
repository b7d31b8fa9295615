//go:build linux

package capcheck

import (
	"os"

	"golang.org/x/sys/unix"
)

// haveNetAdmin mirrors aghos's canBindPrivilegedPorts/haveAdminRights pair:
// check the ambient capability first, then fall back to a root check, since
// a process running as root holds every capability implicitly.
func haveNetAdmin() (ok bool) {
	set, err := unix.PrctlRetInt(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_IS_SET, unix.CAP_NET_ADMIN, 0, 0)
	if err == nil && set == 1 {
		return true
	}

	return os.Getuid() == 0
}
