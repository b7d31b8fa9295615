package filterobj_test

import (
	"context"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafelistFilter(t *testing.T) {
	n := &node{
		id: 1,
		// No "action" attribute: the safelist filter's hit value is always
		// always_trust regardless of configuration.
		kids: []*node{
			child("Host", map[string]string{"value": "Safe.example"}),
		},
	}

	fo, err := filterobj.NewSafelistFilter(n)
	require.NoError(t, err)
	assert.Equal(t, filterobj.CapRequestFilter, fo.Capabilities())

	t.Run("listed_host_always_trusts", func(t *testing.T) {
		req := &httpreq.Request{Host: "safe.example"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.AlwaysTrust, a)
	})

	t.Run("unlisted_host_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{Host: "other.example"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})
}
