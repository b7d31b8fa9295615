package engine_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/engine"
	"github.com/qveil/contentfilter/internal/filterobj"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFilter struct {
	filterobj.Base

	caps    filterobj.Capability
	verdict action.Action
}

func newFakeFilter(id uint32, caps filterobj.Capability, verdict action.Action) (f *fakeFilter) {
	return &fakeFilter{
		Base:    filterobj.NewBase(id, "fake", verdict),
		caps:    caps,
		verdict: verdict,
	}
}

func (f *fakeFilter) Capabilities() (c filterobj.Capability) { return f.caps }

func (f *fakeFilter) RequestFilter(
	context.Context,
	*httpreq.Request,
) (a action.Action, err error) {
	return f.verdict, nil
}

func (f *fakeFilter) StreamFilter(
	_ context.Context,
	_ *httpreq.Request,
	chunk []byte,
) (a action.Action, err error) {
	if len(chunk) == 0 {
		return action.Nomatch, nil
	}

	return f.verdict, nil
}

func discardLogger() (l *slog.Logger) {
	return slog.New(slog.DiscardHandler)
}

func TestContentFilter_RequestVerdict_Default(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)
	cf.Freeze()

	got := cf.RequestVerdict(context.Background(), &httpreq.Request{})
	assert.Equal(t, action.Accept, got)
}

func TestContentFilter_RequestVerdict_FirstMatchWins(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)

	fAccept := newFakeFilter(1, filterobj.CapRequestFilter, action.Accept)
	fReject := newFakeFilter(2, filterobj.CapRequestFilter, action.Reject)
	cf.AddFilter(fAccept)
	cf.AddFilter(fReject)

	rA := rule.New(10, action.Accept)
	require.NoError(t, rA.AddFilter(0, fAccept))
	rB := rule.New(20, action.Reject)
	require.NoError(t, rB.AddFilter(0, fReject))

	cf.AddRule(rA)
	cf.AddRule(rB)
	cf.Freeze()

	req := &httpreq.Request{}
	got := cf.RequestVerdict(context.Background(), req)

	assert.Equal(t, action.Accept, got)
	require.NotNil(t, req.RuleMatched())
	assert.EqualValues(t, 10, req.RuleMatched().RuleID())
}

func TestContentFilter_FilterStream_ResolvesOwningRule(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)

	fVirus := newFakeFilter(1, filterobj.CapStreamFilter, action.Virus)
	cf.AddFilter(fVirus)

	r := rule.New(30, action.Virus)
	require.NoError(t, r.AddFilter(0, fVirus))
	cf.AddRule(r)
	cf.Freeze()

	require.True(t, cf.HasStreamFilter())

	req := &httpreq.Request{}

	got := cf.FilterStream(context.Background(), req, nil)
	assert.Equal(t, action.Nomatch, got)

	got = cf.FilterStream(context.Background(), req, []byte("evil"))
	assert.Equal(t, action.Virus, got)
	require.NotNil(t, req.RuleMatched())
	assert.EqualValues(t, 30, req.RuleMatched().RuleID())
}

// TestContentFilter_FilterStream_LowestRulePositionWins exercises spec.md
// §4.6's resolution rule for simultaneous hits: when two filters both match
// the same chunk, the one whose earliest-referencing rule sits at the lower
// position in the rule list wins, regardless of which filter comes first in
// the filter list.
func TestContentFilter_FilterStream_LowestRulePositionWins(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)

	// fA is added to the filter list before fB, but fA's only referencing
	// rule is added to the rule list after fB's.
	fA := newFakeFilter(1, filterobj.CapStreamFilter, action.Reject)
	fB := newFakeFilter(2, filterobj.CapStreamFilter, action.Virus)
	cf.AddFilter(fA)
	cf.AddFilter(fB)

	rB := rule.New(1, action.Virus)
	require.NoError(t, rB.AddFilter(0, fB))
	cf.AddRule(rB)

	rA := rule.New(2, action.Reject)
	require.NoError(t, rA.AddFilter(0, fA))
	cf.AddRule(rA)

	cf.Freeze()
	require.True(t, cf.HasStreamFilter())

	req := &httpreq.Request{}
	got := cf.FilterStream(context.Background(), req, []byte("evil"))

	assert.Equal(t, action.Virus, got)
	require.NotNil(t, req.RuleMatched())
	assert.EqualValues(t, 1, req.RuleMatched().RuleID())
}

func TestContentFilter_FilterStream_NoCapabilityIsNoop(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)
	cf.Freeze()

	assert.False(t, cf.HasStreamFilter())
	got := cf.FilterStream(context.Background(), &httpreq.Request{}, []byte("x"))
	assert.Equal(t, action.Nomatch, got)
}

func TestContentFilter_RefcountReleasesOnZero(t *testing.T) {
	cf := engine.New(discardLogger(), nil, action.Accept)
	cf.Freeze()

	n := cf.Acquire()
	assert.EqualValues(t, 2, n)

	cf.Release()
	cf.Release()
}

func TestSlot_PublishSwapsAtomically(t *testing.T) {
	first := engine.New(discardLogger(), nil, action.Accept)
	first.Freeze()

	s := engine.NewSlot(first)

	got := s.Acquire()
	assert.Same(t, first, got)
	got.Release()

	second := engine.New(discardLogger(), nil, action.Reject)
	second.Freeze()
	s.Publish(second)

	got = s.Acquire()
	assert.Same(t, second, got)
	got.Release()
}
