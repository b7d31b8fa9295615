//go:build !linux

package filterobj

import "fmt"

// newIpsetChecker is unavailable outside Linux: ipset is a Linux kernel
// netfilter feature.  Configurations naming an "ipset" attribute on a
// non-Linux build fail to load with a clear error instead of silently
// matching nothing.
func newIpsetChecker(name string) (c membershipChecker, err error) {
	return nil, fmt.Errorf("ipset %q: not supported on this platform", name)
}
