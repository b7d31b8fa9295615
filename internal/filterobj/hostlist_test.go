package filterobj_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHostList(t *testing.T, lines string) (path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))

	return path
}

func TestHostListFilter(t *testing.T) {
	path := writeHostList(t, "||blocked.example^\n@@||allowed.example^\n")

	n := &node{
		id:    1,
		attrs: map[string]string{"type": "hostlist", "action": "reject", "path": path},
	}

	fo, err := filterobj.NewHostListFilter(n)
	require.NoError(t, err)
	assert.Equal(t, filterobj.CapRequestFilter, fo.Capabilities())

	t.Run("blocked_host_hits", func(t *testing.T) {
		req := &httpreq.Request{Host: "blocked.example"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})

	t.Run("allowed_host_always_trusts", func(t *testing.T) {
		req := &httpreq.Request{Host: "allowed.example"}
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

	t.Run("port_suffix_is_stripped", func(t *testing.T) {
		req := &httpreq.Request{Host: "blocked.example:8080"}
		a, err := fo.RequestFilter(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, action.Reject, a)
	})
}

func TestHostListFilter_OversizedFile(t *testing.T) {
	path := writeHostList(t, "||blocked.example^\n")

	n := &node{
		id: 1,
		attrs: map[string]string{
			"type": "hostlist", "action": "reject", "path": path,
			"max_size_bytes": "4",
		},
	}

	_, err := filterobj.NewHostListFilter(n)
	assert.Error(t, err)
}
