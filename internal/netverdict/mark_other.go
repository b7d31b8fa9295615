//go:build !linux

package netverdict

import (
	"context"
	"fmt"

	"github.com/qveil/contentfilter/internal/httpreq"
)

// conntrackMarker is unavailable outside Linux: conntrack is a Linux
// kernel netfilter feature.
type conntrackMarker struct{}

// NewConntrackMarker always fails on non-Linux builds. A configuration
// that sets a rule mark on such a build still loads; the mark is simply
// never applied, and [Adapter.Apply] logs nothing here because it has no
// logger of its own — callers that need mark support to be mandatory
// should check the error from this constructor at startup.
func NewConntrackMarker() (m *conntrackMarker, err error) {
	return nil, fmt.Errorf("conntrack marking: not supported on this platform")
}

// SetMark implements [MarkSetter].
func (m *conntrackMarker) SetMark(ctx context.Context, req *httpreq.Request, mark, mask uint32) (err error) {
	return fmt.Errorf("conntrack marking: not supported on this platform")
}

// Close implements [MarkSetter].
func (m *conntrackMarker) Close() (err error) {
	return nil
}
