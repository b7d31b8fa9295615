package filterobj

import (
	"context"
	"fmt"
	"log/slog"
	"plugin"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Constructor builds a fresh filter object from a configuration fragment.
// The returned object holds one owning reference.
type Constructor func(node ConfigNode) (FilterObject, error)

// ErrUnknownType is returned by [Registry.New] when no constructor is
// registered for the requested type name.  The caller is expected to warn
// and skip, per the load-time "referentially incomplete" policy.
const ErrUnknownType errors.Error = "unknown filter object type"

// Registry is a process-wide mapping of type name to constructor.  It is
// safe for concurrent use: registration happens during plug-in discovery at
// startup, while construction happens on every configuration load, which may
// run concurrently with a long-lived process's other work.
type Registry struct {
	logger *slog.Logger

	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.  l must not be nil.
func NewRegistry(l *slog.Logger) (r *Registry) {
	return &Registry{
		logger:       l,
		constructors: map[string]Constructor{},
	}
}

// Register adds a constructor under typeName, overwriting any previous
// registration.  It is how both built-in filter types and discovered
// plug-ins make themselves available to the loader.
func (r *Registry) Register(typeName string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[typeName] = ctor
}

// New constructs a filter object of the given type from node.  It returns
// [ErrUnknownType] if typeName was never registered.
func (r *Registry) New(typeName string, node ConfigNode) (fo FilterObject, err error) {
	r.mu.RLock()
	ctor, ok := r.constructors[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", typeName, ErrUnknownType)
	}

	fo, err = ctor(node)
	if err != nil {
		return nil, fmt.Errorf("constructing %s filter %d: %w", typeName, node.ID(), err)
	}

	return fo, nil
}

// RegisterBuiltins registers the filter object types shipped with this
// module.  It performs no package-level side effects on import; callers
// decide when built-ins become available.
func (r *Registry) RegisterBuiltins() {
	r.Register("host", NewHostFilter)
	r.Register("hostlist", NewHostListFilter)
	r.Register("cidr", NewCIDRFilter)
	r.Register("urlsubstring", NewURLSubstringFilter)
	r.Register("contenthash", NewContentHashFilter)
	r.Register("avscan", NewAVScanFilter)
	r.Register("safelist", NewSafelistFilter)
}

// LoadPlugins discovers out-of-tree filter types by opening every Go plug-in
// (.so file) under each of paths, in order, and calling the symbol
// "RegisterContentFilter" exported by each, passing it r.  An unknown type
// from a missing plug-in is not this function's concern: per-filter load
// failures here are structural (the shared object itself would not open or
// declared no entry point) and are logged and skipped so the rest of the
// search path, and the configuration that depends on it, can still load.
//
// This mirrors the source's dlopen-based discovery over a configured
// library-search-path list with a built-in default path checked last; Go's
// plugin package is the closest stdlib equivalent to dlopen for this
// purpose, and no third-party plug-in loader exists in the retrieved corpus.
func (r *Registry) LoadPlugins(ctx context.Context, searchPaths []string) {
	for _, dir := range searchPaths {
		r.loadPluginDir(ctx, dir)
	}
}

// pluginEntryPoint is the exported symbol every external filter-object
// plug-in must provide.
type pluginEntryPoint = func(*Registry)

func (r *Registry) loadPluginDir(ctx context.Context, dir string) {
	matches, err := globSharedObjects(dir)
	if err != nil {
		r.logger.WarnContext(ctx, "listing plugin dir", "dir", dir, slogutil.KeyError, err)

		return
	}

	for _, path := range matches {
		err = r.loadPluginFile(path)
		if err != nil {
			r.logger.WarnContext(ctx, "loading plugin", "path", path, slogutil.KeyError, err)

			continue
		}

		r.logger.InfoContext(ctx, "loaded plugin", "path", path)
	}
}

func (r *Registry) loadPluginFile(path string) (err error) {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}

	sym, err := p.Lookup("RegisterContentFilter")
	if err != nil {
		return fmt.Errorf("looking up entry point: %w", err)
	}

	register, ok := sym.(pluginEntryPoint)
	if !ok {
		return fmt.Errorf("entry point has unexpected type %T", sym)
	}

	register(r)

	return nil
}
