package filterobj

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/c2h5oh/datasize"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// defaultHostListMaxSize bounds how large a rule-list file this filter will
// read into memory, the same cheap guard AdGuardHome's rule-list storage
// keeps against a misconfigured or compromised list source.
const defaultHostListMaxSize = 8 * datasize.MB

// HostListFilter matches a request's host against an AdBlock-syntax
// hostname rule list, compiled once at load time into a
// [urlfilter.DNSEngine].  It is grounded on AdGuardHome's
// internal/filtering/rulelist.TextEngine, which builds the same engine
// from an in-memory rule-list text; this filter reads that text from a
// configured file instead of a list fetched over HTTP, since this module
// has no rule-list refresh loop.
type HostListFilter struct {
	Base

	storage *filterlist.RuleStorage
	engine  *urlfilter.DNSEngine
}

// NewHostListFilter constructs a HostListFilter from a
// <FilterObject type="hostlist"> node.  The required "path" attribute names
// a file of AdBlock-syntax hostname rules (one per line); the optional
// "max_size_bytes" attribute caps how much of it is read, defaulting to
// [defaultHostListMaxSize].
func NewHostListFilter(node ConfigNode) (fo FilterObject, err error) {
	act, err := hitAction(node)
	if err != nil {
		return nil, err
	}

	path, err := cfgutil.RequireAttr(node, "path")
	if err != nil {
		return nil, err
	}

	maxSize := uint32(defaultHostListMaxSize)
	maxSize, _, err = cfgutil.OptionalUint32(node, "max_size_bytes", maxSize)
	if err != nil {
		return nil, err
	}

	text, err := readCapped(path, int64(maxSize))
	if err != nil {
		return nil, fmt.Errorf("hostlist: reading %q: %w", path, err)
	}

	storage, err := filterlist.NewRuleStorage([]filterlist.RuleList{
		&filterlist.StringRuleList{
			ID:             1,
			RulesText:      text,
			IgnoreCosmetic: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hostlist: compiling %q: %w", path, err)
	}

	return &HostListFilter{
		Base:    NewBase(node.ID(), "hostlist", act),
		storage: storage,
		engine:  urlfilter.NewDNSEngine(storage),
	}, nil
}

// readCapped reads the whole of path after checking its size, returning an
// error if the file is larger than max bytes, so an oversized list is
// rejected instead of silently truncated.
func readCapped(path string, max int64) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}

	if fi.Size() > max {
		return "", fmt.Errorf("file is %d bytes, exceeds limit of %d", fi.Size(), max)
	}

	buf := make([]byte, fi.Size())
	if _, err = f.Read(buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// Capabilities implements [FilterObject].
func (f *HostListFilter) Capabilities() (c Capability) {
	return CapRequestFilter
}

// RequestFilter implements [FilterObject]. It strips a trailing ":port"
// before matching, since the engine's rules are written against bare
// hostnames, mirroring the DNS-question matching [urlfilter.DNSEngine] was
// built for.
func (f *HostListFilter) RequestFilter(_ context.Context, req *httpreq.Request) (a action.Action, err error) {
	host := req.Host
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	if host == "" {
		return action.Nomatch, nil
	}

	res, ok := f.engine.Match(host, nil)
	if !ok || res.NetworkRule == nil {
		return action.Nomatch, nil
	}

	if res.NetworkRule.Whitelist {
		return action.AlwaysTrust, nil
	}

	return f.HitValue(), nil
}

// Close implements [Closer].
func (f *HostListFilter) Close() (err error) {
	return f.storage.Close()
}
