package filterobj

import "github.com/AdguardTeam/golibs/errors"

// List is an ordered, id-indexed collection of filter objects.  Insertion
// order is preserved for traversal; id lookup is served from a hashed
// index, promoted from the source's linear scan per the invitation in
// spec.md §4.4.
type List struct {
	byID  map[uint32]FilterObject
	order []FilterObject
}

// NewList returns an empty filter list.
func NewList() (l *List) {
	return &List{
		byID: map[uint32]FilterObject{},
	}
}

// Append adds fo to the end of the list.
func (l *List) Append(fo FilterObject) {
	l.byID[fo.ID()] = fo
	l.order = append(l.order, fo)
}

// FindByID returns the filter object with the given id, if any.
func (l *List) FindByID(id uint32) (fo FilterObject, ok bool) {
	fo, ok = l.byID[id]

	return fo, ok
}

// Len returns the number of filter objects in the list.
func (l *List) Len() (n int) {
	return len(l.order)
}

// All returns the filter objects in insertion order.  The returned slice
// must not be mutated by the caller.
func (l *List) All() (all []FilterObject) {
	return l.order
}

// ForEach calls visit for every filter object in insertion order, passing
// carry through unchanged, until visit returns a non-zero result or the
// list is exhausted.  It returns the first non-zero result, or the zero
// value of R.
func ForEach[R comparable](l *List, carry any, visit func(fo FilterObject, carry any) R) (result R) {
	var zero R
	for _, fo := range l.order {
		result = visit(fo, carry)
		if result != zero {
			return result
		}
	}

	return zero
}

// Close releases every owned filter object that implements [Closer].  It
// collects and joins every error encountered rather than stopping at the
// first one, so that one misbehaving filter does not prevent the rest from
// releasing their resources.
func (l *List) Close() (err error) {
	var errs []error
	for _, fo := range l.order {
		if c, ok := fo.(Closer); ok {
			if cerr := c.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
	}

	return errors.Join(errs...)
}
