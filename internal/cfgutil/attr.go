// Package cfgutil provides small, shared helpers for reading typed values
// out of the hierarchical configuration document, used by both the loader
// and the built-in filter-object constructors.
package cfgutil

import (
	"fmt"
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
)

// AttrSource is the minimal attribute-reading capability both
// [filterobj.ConfigNode] and the loader's own element type provide.
type AttrSource interface {
	Attr(name string) (value string, ok bool)
}

// ErrMissingAttr is returned by [RequireAttr] when the named attribute is
// absent.
const ErrMissingAttr errors.Error = "missing required attribute"

// RequireAttr returns the named attribute's value, or [ErrMissingAttr] if it
// is absent.  A missing required attribute is a malformed configuration per
// spec.md §7 and must be treated as fatal by the caller.
func RequireAttr(n AttrSource, name string) (value string, err error) {
	value, ok := n.Attr(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrMissingAttr)
	}

	return value, nil
}

// ParseUint32 parses s as an unsigned 32-bit integer, accepting decimal,
// "0x"-prefixed hex, and "0"-prefixed octal forms, per the standard integer
// parsing rules named in spec.md §6.
func ParseUint32(s string) (v uint32, err error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}

	return uint32(n), nil
}

// OptionalUint32 parses the named optional attribute as a uint32.  If the
// attribute is absent, it returns def and no error.  If present but
// unparseable, it returns def, true (logged), and a non-nil error so the
// caller can log the fallback per spec.md §7's "attribute parse error on an
// optional numeric field" policy.
func OptionalUint32(n AttrSource, name string, def uint32) (v uint32, usedDefault bool, err error) {
	s, ok := n.Attr(name)
	if !ok {
		return def, false, nil
	}

	v, err = ParseUint32(s)
	if err != nil {
		return def, true, fmt.Errorf("%s: %w", name, err)
	}

	return v, false, nil
}
