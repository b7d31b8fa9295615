package filterobj

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/cache"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/httpreq"
)

// expirySize is the width, in bytes, of the expiry timestamp prefixed onto
// every value this filter stores in its cache, matching the encoding
// hashprefix.Checker uses to keep a TTL on top of a Cache that has none of
// its own.
const expirySize = 8

// Scanner is the network client for an external scanning daemon, narrowed to
// the one call this filter needs.  It is analogous in shape to
// hashprefix.Checker's upstream exchange, but trades a DNS-over-TXT
// transport for whatever wire protocol the daemon speaks; concrete Scanner
// implementations live outside this package.
type Scanner interface {
	// Scan returns the action the daemon assigns to body, or
	// [action.Nomatch] if it found nothing.
	Scan(ctx context.Context, url string, body []byte) (a action.Action, err error)
}

// AVScanFilter submits a fully-buffered response body to an external
// scanning daemon and caches the verdict by URL, mirroring the memoization
// hashprefix.Checker does for hash lookups, but keyed by URL instead of
// hostname hash since a scan verdict is per-resource, not per-host.
type AVScanFilter struct {
	Base

	scanner Scanner
	cache   cache.Cache
	ttl     time.Duration
}

// AVScanConfig carries the pieces NewAVScanFilter cannot derive from a
// ConfigNode alone: the registry has no way to construct a network client
// from XML attributes, so the caller wires it in via the node's attribute
// values.
type AVScanConfig struct {
	// Scanners maps a daemon name (as named by a node's "daemon" attribute)
	// to the client that talks to it.
	Scanners map[string]Scanner
}

// NewAVScanFilterFunc returns a registry [Constructor] bound to conf, since
// the plain from_config signature has no room for injected dependencies.
func NewAVScanFilterFunc(conf AVScanConfig) (ctor Constructor) {
	return func(node ConfigNode) (fo FilterObject, err error) {
		act, err := hitAction(node)
		if err != nil {
			return nil, err
		}

		daemon, err := cfgutil.RequireAttr(node, "daemon")
		if err != nil {
			return nil, err
		}

		scanner, ok := conf.Scanners[daemon]
		if !ok {
			return nil, fmt.Errorf("avscan: unknown daemon %q", daemon)
		}

		cacheSize, _, err := cfgutil.OptionalUint32(node, "cache_size", 1024)
		if err != nil {
			return nil, err
		}

		ttlSeconds, _, err := cfgutil.OptionalUint32(node, "cache_ttl_seconds", 300)
		if err != nil {
			return nil, err
		}

		return &AVScanFilter{
			Base:    NewBase(node.ID(), "avscan", act),
			scanner: scanner,
			cache:   cache.New(cache.Config{EnableLRU: true, MaxSize: uint(cacheSize)}),
			ttl:     time.Duration(ttlSeconds) * time.Second,
		}, nil
	}
}

// NewAVScanFilter is registered as the built-in "avscan" constructor with no
// daemons configured; configurations that name one always fail to load
// until a constructor from [NewAVScanFilterFunc] with a real AVScanConfig
// is registered under "avscan" with [Registry.Register], replacing this
// default.
func NewAVScanFilter(node ConfigNode) (fo FilterObject, err error) {
	return NewAVScanFilterFunc(AVScanConfig{})(node)
}

// Capabilities implements [FilterObject].
func (f *AVScanFilter) Capabilities() (c Capability) {
	return CapFileFilter
}

// FileFilter implements [FilterObject].
func (f *AVScanFilter) FileFilter(ctx context.Context, req *httpreq.Request) (a action.Action, err error) {
	key := []byte(req.URL)

	if v := f.cache.Get(key); v != nil && len(v) == expirySize+1 {
		expiry := time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		if time.Now().Before(expiry) {
			return action.Action(v[expirySize]), nil
		}
	}

	result, err := f.scanner.Scan(ctx, req.URL, req.Body())
	if err != nil {
		return action.Nomatch, fmt.Errorf("avscan: %w", err)
	}

	entry := binary.BigEndian.AppendUint64(nil, uint64(time.Now().Add(f.ttl).Unix()))
	entry = append(entry, byte(result))
	f.cache.Set(key, entry)

	if result.IsMatch() {
		return result, nil
	}

	return action.Nomatch, nil
}
