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

func TestURLSubstringFilter(t *testing.T) {
	n := &node{
		id:    1,
		attrs: map[string]string{"type": "urlsubstring", "action": "reject"},
		kids: []*node{
			child("Substring", map[string]string{"value": "/ads/"}),
		},
	}

	fo, err := filterobj.NewURLSubstringFilter(n)
	require.NoError(t, err)
	assert.Equal(t, filterobj.CapRequestFilter, fo.Capabilities())

	t.Run("url_containing_substring_matches", func(t *testing.T) {
		req := &httpreq.Request{URL: "http://x.com/ads/banner"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})

	t.Run("url_without_substring_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{URL: "http://x.com/good"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})
}
