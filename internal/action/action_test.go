package action_test

import (
	"testing"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromText(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want action.Action
		in   string
	}{{
		in:   "nomatch",
		want: action.Nomatch,
	}, {
		in:   "accept",
		want: action.Accept,
	}, {
		in:   "reject",
		want: action.Reject,
	}, {
		in:   "virus",
		want: action.Virus,
	}, {
		in:   "phishing",
		want: action.Phishing,
	}, {
		in:   "malware",
		want: action.Malware,
	}, {
		in:   "always_trust",
		want: action.AlwaysTrust,
	}}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			a, err := action.FromText(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a)
		})
	}
}

func TestFromText_unknown(t *testing.T) {
	t.Parallel()

	_, err := action.FromText("bogus")
	assert.ErrorIs(t, err, action.ErrUnknownAction)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	all := []action.Action{
		action.Nomatch,
		action.Accept,
		action.Reject,
		action.Virus,
		action.Phishing,
		action.Malware,
		action.AlwaysTrust,
	}

	for _, a := range all {
		t.Run(a.String(), func(t *testing.T) {
			t.Parallel()

			got, err := action.FromText(a.String())
			require.NoError(t, err)
			assert.Equal(t, a, got)
		})
	}
}

func TestAction_IsMatch(t *testing.T) {
	t.Parallel()

	assert.False(t, action.Nomatch.IsMatch())
	assert.True(t, action.Accept.IsMatch())
	assert.True(t, action.Reject.IsMatch())
}
