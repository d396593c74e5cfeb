package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTable(t *testing.T) {
	valid := map[State]map[Event]State{
		Idle:      {Submit: Loading, Reset: Idle},
		Loading:   {Review: Reviewing, Succeed: Success, Fail: Error},
		Reviewing: {Confirm: Loading, Reset: Idle, Fail: Error},
		Success:   {Reset: Idle, Submit: Loading},
		Error:     {Reset: Idle, Submit: Loading},
	}
	events := []Event{Submit, Review, Confirm, Succeed, Fail, Reset}
	for s, table := range valid {
		for _, e := range events {
			next, err := Next(s, e)
			if want, ok := table[e]; ok {
				require.NoError(t, err, "%s on %s", s, e)
				assert.Equal(t, want, next, "%s on %s", s, e)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", s, e)
				assert.Equal(t, s, next)
			}
		}
	}
}

func TestMachineReviewFlow(t *testing.T) {
	m := New()
	assert.Equal(t, Idle, m.State())

	_, err := m.Fire(Confirm)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, e := range []Event{Submit, Review, Confirm, Succeed} {
		_, err := m.Fire(e)
		require.NoError(t, err)
	}
	assert.Equal(t, Success, m.State())
	assert.NoError(t, m.Err())
}

func TestMachineRun(t *testing.T) {
	m := New()
	boom := errors.New("boom")

	err := m.Run(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Error, m.State())
	assert.ErrorIs(t, m.Err(), boom)

	require.NoError(t, m.Run(func() error { return nil }))
	assert.Equal(t, Success, m.State())
	assert.NoError(t, m.Err())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "reviewing", Reviewing.String())
	assert.Equal(t, "confirm", Confirm.String())
	assert.Equal(t, "State(9)", State(9).String())
}
