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

// node is a minimal in-memory [filterobj.ConfigNode] for constructing
// built-in filter objects in tests, without going through the XML loader.
type node struct {
	id    uint32
	name  string
	attrs map[string]string
	kids  []*node
}

func (n *node) ID() (id uint32) { return n.id }

func (n *node) Name() (name string) { return n.name }

func (n *node) Attr(name string) (value string, ok bool) {
	value, ok = n.attrs[name]

	return value, ok
}

func (n *node) Children() (kids []filterobj.ConfigNode) {
	kids = make([]filterobj.ConfigNode, len(n.kids))
	for i, k := range n.kids {
		kids[i] = k
	}

	return kids
}

func child(name string, attrs map[string]string) (n *node) {
	return &node{name: name, attrs: attrs}
}

func TestHostFilter(t *testing.T) {
	n := &node{
		id:   1,
		name: "FilterObject",
		attrs: map[string]string{
			"type": "host", "action": "reject",
		},
		kids: []*node{
			child("Host", map[string]string{"value": "Example.COM"}),
		},
	}

	fo, err := filterobj.NewHostFilter(n)
	require.NoError(t, err)

	assert.Equal(t, filterobj.CapRequestStart|filterobj.CapRequestFilter, fo.Capabilities())

	t.Run("exact_match_case_insensitive", func(t *testing.T) {
		req := &httpreq.Request{Host: "example.com"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})

	t.Run("subdomain_matches_registrable_domain", func(t *testing.T) {
		req := &httpreq.Request{Host: "www.example.com"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})

	t.Run("unrelated_host_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{Host: "other.com"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})

	t.Run("empty_host_does_not_match", func(t *testing.T) {
		req := &httpreq.Request{}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Nomatch, a)
	})
}

func TestHostFilter_MissingAction(t *testing.T) {
	n := &node{id: 1, attrs: map[string]string{"type": "host"}}

	_, err := filterobj.NewHostFilter(n)
	assert.Error(t, err)
}
