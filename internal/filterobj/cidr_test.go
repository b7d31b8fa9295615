package filterobj_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDRFilter(t *testing.T) {
	n := &node{
		id:    1,
		attrs: map[string]string{"type": "cidr", "action": "reject"},
		kids: []*node{
			child("Network", map[string]string{"value": "203.0.113.0/24"}),
		},
	}

	fo, err := filterobj.NewCIDRFilter(n)
	require.NoError(t, err)
	assert.Equal(t, filterobj.CapRequestFilter, fo.Capabilities())

	t.Run("member_address_matches", func(t *testing.T) {
		req := &httpreq.Request{RemoteAddr: netip.MustParseAddr("203.0.113.42")}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})

	t.Run("non_member_address_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{RemoteAddr: netip.MustParseAddr("198.51.100.1")}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})

	t.Run("invalid_address_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})
}

func TestCIDRFilter_InvalidNetwork(t *testing.T) {
	n := &node{
		id:    1,
		attrs: map[string]string{"type": "cidr", "action": "reject"},
		kids: []*node{
			child("Network", map[string]string{"value": "not-a-cidr"}),
		},
	}

	_, err := filterobj.NewCIDRFilter(n)
	assert.Error(t, err)
}
