package rule_test

import (
	"context"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFilter is a minimal [filterobj.FilterObject] whose request_filter
// verdict is fixed at construction, for exercising rule evaluation without a
// real matcher.
type fakeFilter struct {
	filterobj.Base

	verdict action.Action
}

func newFakeFilter(id uint32, verdict action.Action) (f *fakeFilter) {
	return &fakeFilter{
		Base:    filterobj.NewBase(id, "fake", verdict),
		verdict: verdict,
	}
}

func (f *fakeFilter) Capabilities() (c filterobj.Capability) {
	return filterobj.CapRequestFilter
}

func (f *fakeFilter) RequestFilter(
	context.Context,
	*httpreq.Request,
) (a action.Action, err error) {
	return f.verdict, nil
}

func TestRule_Verdict(t *testing.T) {
	req := &httpreq.Request{}

	t.Run("no_groups_never_matches", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		assert.Equal(t, action.Nomatch, r.Verdict(context.Background(), req))
	})

	t.Run("single_group_hit", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		require.NoError(t, r.AddFilter(0, newFakeFilter(1, action.Accept)))

		assert.Equal(t, action.Reject, r.Verdict(context.Background(), req))
	})

	t.Run("single_group_miss", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		require.NoError(t, r.AddFilter(0, newFakeFilter(1, action.Nomatch)))

		assert.Equal(t, action.Nomatch, r.Verdict(context.Background(), req))
	})

	t.Run("two_groups_and_semantics", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		require.NoError(t, r.AddFilter(0, newFakeFilter(1, action.Accept)))
		require.NoError(t, r.AddFilter(1, newFakeFilter(2, action.Nomatch)))

		// Group 1 has no hit, so the rule as a whole does not match even
		// though group 0 did.
		assert.Equal(t, action.Nomatch, r.Verdict(context.Background(), req))
	})

	t.Run("group_or_semantics", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		require.NoError(t, r.AddFilter(0, newFakeFilter(1, action.Nomatch)))
		require.NoError(t, r.AddFilter(0, newFakeFilter(2, action.Accept)))

		assert.Equal(t, action.Reject, r.Verdict(context.Background(), req))
	})

	t.Run("group_out_of_range_is_fatal", func(t *testing.T) {
		r := rule.New(1, action.Reject)
		err := r.AddFilter(rule.MaxFilterGroups, newFakeFilter(1, action.Accept))
		assert.ErrorIs(t, err, rule.ErrGroupOutOfRange)
	})
}

func TestRule_ContainsFilter(t *testing.T) {
	r := rule.New(1, action.Reject)
	f := newFakeFilter(7, action.Accept)
	require.NoError(t, r.AddFilter(2, f))

	ok, group := r.ContainsFilter(f)
	assert.True(t, ok)
	assert.Equal(t, 2, group)

	ok, _ = r.ContainsFilter(newFakeFilter(8, action.Accept))
	assert.False(t, ok)
}

func TestRule_MaskDefault(t *testing.T) {
	r := rule.New(1, action.Reject)
	_, mask := r.Mark()
	assert.Equal(t, ^uint32(0), mask)
}
