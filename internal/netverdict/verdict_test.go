package netverdict_test

import (
	"context"
	"errors"
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/qveil/contentfilter/internal/netverdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRule struct {
	id      uint32
	mark    uint32
	mask    uint32
	hasMark bool
}

func (r fakeRule) RuleID() (id uint32)       { return r.id }
func (r fakeRule) ShouldLog() (ok bool)      { return false }
func (r fakeRule) ShouldNotify() (ok bool)   { return false }
func (r fakeRule) Mark() (mark, mask uint32) { return r.mark, r.mask }
func (r fakeRule) HasMark() (ok bool)        { return r.hasMark }

type fakeMarker struct {
	calls int
	err   error
}

func (m *fakeMarker) SetMark(_ context.Context, _ *httpreq.Request, _, _ uint32) (err error) {
	m.calls++

	return m.err
}

func (m *fakeMarker) Close() (err error) { return nil }

func TestFromAction(t *testing.T) {
	assert.Equal(t, netverdict.QueueAccept, netverdict.FromAction(action.Accept))
	assert.Equal(t, netverdict.QueueAccept, netverdict.FromAction(action.AlwaysTrust))
	assert.Equal(t, netverdict.QueueDrop, netverdict.FromAction(action.Reject))
	assert.Equal(t, netverdict.QueueDrop, netverdict.FromAction(action.Virus))
}

func TestAdapter_Apply_NoMark(t *testing.T) {
	var gotQueueID, gotPacketID uint32
	var gotVerdict netverdict.QueueVerdict

	setVerdict := func(_ context.Context, queueID, packetID uint32, v netverdict.QueueVerdict) error {
		gotQueueID, gotPacketID, gotVerdict = queueID, packetID, v

		return nil
	}

	marker := &fakeMarker{}
	a := netverdict.New(setVerdict, marker)

	err := a.Apply(context.Background(), &httpreq.Request{}, fakeRule{id: 1}, 7, 42, action.Reject)
	require.NoError(t, err)

	assert.EqualValues(t, 7, gotQueueID)
	assert.EqualValues(t, 42, gotPacketID)
	assert.Equal(t, netverdict.QueueDrop, gotVerdict)
	assert.Zero(t, marker.calls)
}

func TestAdapter_Apply_WithMark(t *testing.T) {
	setVerdict := func(_ context.Context, _, _ uint32, _ netverdict.QueueVerdict) error { return nil }

	marker := &fakeMarker{}
	a := netverdict.New(setVerdict, marker)

	rule := fakeRule{id: 2, mark: 0x10, mask: 0xff, hasMark: true}
	err := a.Apply(context.Background(), &httpreq.Request{}, rule, 1, 1, action.Reject)
	require.NoError(t, err)

	assert.Equal(t, 1, marker.calls)
}

func TestAdapter_Apply_NilMarker(t *testing.T) {
	setVerdict := func(_ context.Context, _, _ uint32, _ netverdict.QueueVerdict) error { return nil }

	a := netverdict.New(setVerdict, nil)

	rule := fakeRule{id: 3, hasMark: true}
	err := a.Apply(context.Background(), &httpreq.Request{}, rule, 1, 1, action.Accept)
	assert.NoError(t, err)
}

func TestAdapter_Apply_MarkErrorDoesNotSuppressVerdict(t *testing.T) {
	verdictCalled := false
	setVerdict := func(_ context.Context, _, _ uint32, _ netverdict.QueueVerdict) error {
		verdictCalled = true

		return nil
	}

	marker := &fakeMarker{err: errors.New("dial failed")}
	a := netverdict.New(setVerdict, marker)

	rule := fakeRule{id: 4, mark: 1, mask: 1, hasMark: true}
	err := a.Apply(context.Background(), &httpreq.Request{}, rule, 1, 1, action.Reject)

	assert.True(t, verdictCalled)
	assert.Error(t, err)
}

func TestAdapter_Apply_QueueVerdictError(t *testing.T) {
	setVerdict := func(_ context.Context, _, _ uint32, _ netverdict.QueueVerdict) error {
		return errors.New("queue closed")
	}

	a := netverdict.New(setVerdict, nil)

	err := a.Apply(context.Background(), &httpreq.Request{}, nil, 1, 1, action.Accept)
	assert.Error(t, err)
}
