package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateReview.Terminal())
	assert.True(t, StateAccepted.Terminal())
	assert.True(t, StateRejected.Terminal())
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateReview, StateAccepted, true},
		{StateReview, StateRejected, true},
		{StateReview, StateReview, false},
		{StateAccepted, StateRejected, false},
		{StateAccepted, StateReview, false},
		{StateRejected, StateAccepted, false},
		{StateRejected, StateReview, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, ValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []string{"review", "accepted", "rejected"} {
		state, err := ParseState(s)
		require.NoError(t, err)
		assert.Equal(t, State(s), state)
	}

	_, err := ParseState("pending")
	assert.Error(t, err)
}
