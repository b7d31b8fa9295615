package filterobj

import (
	"context"
	"encoding/hex"
	"hash"

	"github.com/AdguardTeam/golibs/container"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
	"golang.org/x/crypto/blake2b"
)

// ContentHashFilter hits when the blake2b-256 digest of a streamed response
// body matches one of a configured set of hex-encoded digests.  The digest
// is accumulated incrementally across StreamFilter calls and checked once
// the stream ends, since a partial body never hashes to a complete-body
// digest.
type ContentHashFilter struct {
	Base

	hashes *container.MapSet[string]
}

// NewContentHashFilter constructs a ContentHashFilter from a
// <FilterObject type="contenthash"> node.  Children are
// <Hash value="<hex-digest>"/> elements.
func NewContentHashFilter(node ConfigNode) (fo FilterObject, err error) {
	act, err := hitAction(node)
	if err != nil {
		return nil, err
	}

	f := &ContentHashFilter{
		Base:   NewBase(node.ID(), "contenthash", act),
		hashes: container.NewMapSet[string](),
	}

	for _, child := range node.Children() {
		if child.Name() != "Hash" {
			continue
		}

		value, verr := cfgutil.RequireAttr(child, "value")
		if verr != nil {
			return nil, verr
		}

		f.hashes.Add(value)
	}

	return f, nil
}

// Capabilities implements [FilterObject].
func (f *ContentHashFilter) Capabilities() (c Capability) {
	return CapStreamFilter
}

// StreamFilter implements [FilterObject].  It hashes chunk into this
// request's running digest and reports a hit once the stream closes (a
// nil chunk) if the final digest is in the configured set.
func (f *ContentHashFilter) StreamFilter(_ context.Context, req *httpreq.Request, chunk []byte) (a action.Action, err error) {
	v, ok := req.Scratch(f.ID())
	if !ok {
		h, herr := blake2b.New256(nil)
		if herr != nil {
			return action.Nomatch, herr
		}

		v = h
		req.SetScratch(f.ID(), v)
	}

	h, ok := v.(hash.Hash)
	if !ok {
		return action.Nomatch, nil
	}

	if chunk != nil {
		_, _ = h.Write(chunk)

		return action.Nomatch, nil
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if f.hashes.Has(digest) {
		return f.HitValue(), nil
	}

	return action.Nomatch, nil
}
