package filterobj_test

import (
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closingFilter records whether it was closed, for exercising
// [filterobj.List.Close].
type closingFilter struct {
	filterobj.Base

	closed bool
}

func (f *closingFilter) Close() (err error) {
	f.closed = true

	return nil
}

func TestList(t *testing.T) {
	l := filterobj.NewList()

	f1 := &closingFilter{Base: filterobj.NewBase(1, "fake", action.Reject)}
	f2 := &closingFilter{Base: filterobj.NewBase(2, "fake", action.Reject)}

	l.Append(f1)
	l.Append(f2)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []filterobj.FilterObject{f1, f2}, l.All())

	got, ok := l.FindByID(2)
	assert.True(t, ok)
	assert.Same(t, f2, got)

	_, ok = l.FindByID(99)
	assert.False(t, ok)
}

func TestList_ForEach_StopsOnFirstNonZero(t *testing.T) {
	l := filterobj.NewList()
	l.Append(&closingFilter{Base: filterobj.NewBase(1, "fake", action.Reject)})
	l.Append(&closingFilter{Base: filterobj.NewBase(2, "fake", action.Reject)})
	l.Append(&closingFilter{Base: filterobj.NewBase(3, "fake", action.Reject)})

	var visited []uint32
	result := filterobj.ForEach(l, nil, func(fo filterobj.FilterObject, _ any) uint32 {
		visited = append(visited, fo.ID())
		if fo.ID() == 2 {
			return fo.ID()
		}

		return 0
	})

	assert.Equal(t, uint32(2), result)
	assert.Equal(t, []uint32{1, 2}, visited)
}

func TestList_Close(t *testing.T) {
	l := filterobj.NewList()
	f1 := &closingFilter{Base: filterobj.NewBase(1, "fake", action.Reject)}
	f2 := &closingFilter{Base: filterobj.NewBase(2, "fake", action.Reject)}
	l.Append(f1)
	l.Append(f2)

	require.NoError(t, l.Close())
	assert.True(t, f1.closed)
	assert.True(t, f2.closed)
}
