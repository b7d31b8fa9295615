// Package config implements the two-phase configuration loader: an XML
// document is decoded into a generic element tree, filter objects are
// constructed from the FilterObjectsDef section, and rules are built from
// the Rules section referencing those filter objects by id.
package config

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/engine"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/metrics"
	"github.com/qveil/contentfilter/internal/rule"
)

// ErrUnknownRootElement is returned when the document root contains an
// element other than FilterObjectsDef or Rules, a fatal configuration error
// per spec.md §7.
const ErrUnknownRootElement errors.Error = "unknown root-level element"

// ErrMissingFilterObjectsDef is returned when the root has no
// FilterObjectsDef section at all. An empty FilterObjectsDef is valid; a
// missing one is not, since the loader then has nowhere to record the
// element-ordering requirement from spec.md §4.7.
const ErrMissingFilterObjectsDef errors.Error = "missing FilterObjectsDef section"

// LoaderConfig is the Loader's own configuration: the collaborators it
// needs before it can build a [*engine.ContentFilter] from a document.
type LoaderConfig struct {
	// Logger is used to report referentially-incomplete and
	// attribute-parse-fallback conditions. It must not be nil.
	Logger *slog.Logger

	// Metrics records verdict and filter-callback observations on the
	// engines this Loader builds. It may be nil, in which case no metrics
	// are recorded.
	Metrics *metrics.Metrics

	// Registry resolves a FilterObject's "type" attribute to a
	// constructor. It must not be nil.
	Registry *filterobj.Registry
}

// type check
var _ validate.Interface = (*LoaderConfig)(nil)

// Validate implements the [validate.Interface] interface for *LoaderConfig.
func (conf *LoaderConfig) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", conf.Logger),
		validate.NotNil("Registry", conf.Registry),
	}

	return errors.Join(errs...)
}

// Loader builds a [*engine.ContentFilter] from a configuration document.
type Loader struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *filterobj.Registry
}

// NewLoader returns a Loader built from a validated conf.
func NewLoader(conf *LoaderConfig) (l *Loader, err error) {
	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating loader config: %w", err)
	}

	return &Loader{logger: conf.Logger, metrics: conf.Metrics, registry: conf.Registry}, nil
}

// Load reads a complete configuration document from r and returns a frozen,
// single-referenced [*engine.ContentFilter] ready for [engine.Slot.Publish].
func (l *Loader) Load(ctx context.Context, r io.Reader, defaultAction action.Action) (cf *engine.ContentFilter, err error) {
	var root Node
	if err = xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	var defs, rulesSection *Node
	for i := range root.Kids {
		kid := &root.Kids[i]

		switch kid.Name() {
		case "FilterObjectsDef":
			defs = kid
		case "Rules":
			rulesSection = kid
		default:
			return nil, fmt.Errorf("%s: %w", kid.Name(), ErrUnknownRootElement)
		}
	}

	if defs == nil {
		return nil, ErrMissingFilterObjectsDef
	}

	cf = engine.New(l.logger, l.metrics, defaultAction)

	if err = l.loadFilterObjects(ctx, cf, defs); err != nil {
		return nil, fmt.Errorf("loading filter objects: %w", err)
	}

	if rulesSection != nil {
		if err = l.loadRules(ctx, cf, rulesSection); err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
	}

	cf.Freeze()

	return cf, nil
}

// loadFilterObjects constructs every <FilterObject> child of defs, in
// document order, registering each with cf. An unknown type is logged and
// skipped per spec.md §4.3; every other constructor error is fatal, since it
// reflects a malformed filter-specific attribute set.
func (l *Loader) loadFilterObjects(ctx context.Context, cf *engine.ContentFilter, defs *Node) (err error) {
	for _, node := range defs.ChildrenNamed("FilterObject") {
		typeName, ok := node.Attr("type")
		if !ok {
			return fmt.Errorf("filter object %d: %w", node.ID(), cfgutil.ErrMissingAttr)
		}

		fo, ferr := l.registry.New(typeName, node)
		if ferr != nil {
			if errors.Is(ferr, filterobj.ErrUnknownType) {
				l.logger.WarnContext(ctx, "skipping filter object with unknown type",
					"id", node.ID(), "type", typeName)

				continue
			}

			return ferr
		}

		cf.AddFilter(fo)
	}

	return nil
}

// loadRules constructs every <Rule> child of rulesSection, in document
// order, appending each to cf.
func (l *Loader) loadRules(ctx context.Context, cf *engine.ContentFilter, rulesSection *Node) (err error) {
	for _, node := range rulesSection.ChildrenNamed("Rule") {
		r, rerr := l.loadRule(ctx, cf, node)
		if rerr != nil {
			return rerr
		}

		cf.AddRule(r)
	}

	return nil
}

// loadRule builds one rule.Rule from a <Rule> element, resolving each child
// <Filter> reference against cf's already-loaded filter list.
func (l *Loader) loadRule(ctx context.Context, cf *engine.ContentFilter, node *Node) (r *rule.Rule, err error) {
	id := node.ID()

	actionText, ok := node.Attr("action")
	if !ok {
		return nil, fmt.Errorf("rule %d: %w", id, cfgutil.ErrMissingAttr)
	}

	a, err := action.FromText(actionText)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", id, err)
	}

	r = rule.New(id, a)

	if comment, ok := node.Attr("comment"); ok {
		r.SetComment(comment)
	}

	if _, present := node.Attr("log"); present {
		logVal, _, lerr := cfgutil.OptionalUint32(node, "log", 0)
		if lerr != nil {
			l.logger.WarnContext(ctx, "rule log attribute unparseable, defaulting to false",
				"rule_id", id, slogutil.KeyError, lerr)
		} else {
			r.SetLog(logVal != 0)
		}
	}

	if _, present := node.Attr("mark"); present {
		mark, _, merr := cfgutil.OptionalUint32(node, "mark", 0)
		if merr != nil {
			l.logger.WarnContext(ctx, "rule mark attribute unparseable, leaving mark unset",
				"rule_id", id, slogutil.KeyError, merr)
		} else {
			r.SetMark(mark)
		}
	}

	mask, _, merr := cfgutil.OptionalUint32(node, "mask", ^uint32(0))
	if merr != nil {
		l.logger.WarnContext(ctx, "rule mask attribute unparseable, defaulting to all-ones",
			"rule_id", id, slogutil.KeyError, merr)
	} else {
		r.SetMask(mask)
	}

	for _, filterRef := range node.ChildrenNamed("Filter") {
		if err = l.addFilterRef(ctx, cf, r, id, filterRef); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// addFilterRef resolves one <Filter id="..." group="..."/> child against
// cf's filter list and appends it to r. A group index out of range is
// fatal; an unresolvable filter id is logged and dropped, per spec.md §4.7.
func (l *Loader) addFilterRef(ctx context.Context, cf *engine.ContentFilter, r *rule.Rule, ruleID uint32, filterRef *Node) (err error) {
	filterIDStr, ok := filterRef.Attr("id")
	if !ok {
		return fmt.Errorf("rule %d: filter reference: %w", ruleID, cfgutil.ErrMissingAttr)
	}

	filterID, err := cfgutil.ParseUint32(filterIDStr)
	if err != nil {
		return fmt.Errorf("rule %d: filter reference id: %w", ruleID, err)
	}

	groupStr, ok := filterRef.Attr("group")
	if !ok {
		return fmt.Errorf("rule %d: filter reference: %w", ruleID, cfgutil.ErrMissingAttr)
	}

	group, err := cfgutil.ParseUint32(groupStr)
	if err != nil {
		return fmt.Errorf("rule %d: filter reference group: %w", ruleID, err)
	}

	fo, ok := cf.FindFilter(filterID)
	if !ok {
		l.logger.WarnContext(ctx, "rule references unknown filter id, dropping reference",
			"rule_id", ruleID, "filter_id", filterID)

		return nil
	}

	return r.AddFilter(int(group), fo)
}
