// Package flow is the Idle, Loading, Reviewing, Success, Error state machine shared by tool operations.
package flow

import (
	"errors"
	"fmt"
	"sync"
)

type State uint8

const (
	Idle State = iota
	Loading
	Reviewing
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Reviewing:
		return "reviewing"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type Event uint8

const (
	Submit Event = iota
	Review
	Confirm
	Succeed
	Fail
	Reset
)

func (e Event) String() string {
	switch e {
	case Submit:
		return "submit"
	case Review:
		return "review"
	case Confirm:
		return "confirm"
	case Succeed:
		return "succeed"
	case Fail:
		return "fail"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

var ErrInvalidTransition = errors.New("invalid transition")

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, error) {
	switch s {
	case Idle:
		switch e {
		case Submit:
			return Loading, nil
		case Reset:
			return Idle, nil
		}
	case Loading:
		switch e {
		case Review:
			return Reviewing, nil
		case Succeed:
			return Success, nil
		case Fail:
			return Error, nil
		}
	case Reviewing:
		switch e {
		case Confirm:
			return Loading, nil
		case Reset:
			return Idle, nil
		case Fail:
			return Error, nil
		}
	case Success, Error:
		switch e {
		case Reset:
			return Idle, nil
		case Submit:
			return Loading, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, e)
}

// Machine holds the current state and the error of the last failure.
type Machine struct {
	mu    sync.Mutex
	state State
	err   error
}

func New() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the cause recorded by the last Fail, nil otherwise.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Fire applies e and returns the new state. The state is unchanged on error.
func (m *Machine) Fire(e Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := Next(m.state, e)
	if err != nil {
		return m.state, err
	}
	m.state = next
	if next != Error {
		m.err = nil
	}
	return next, nil
}

// Fail moves to Error recording cause.
func (m *Machine) Fail(cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := Next(m.state, Fail)
	if err != nil {
		return err
	}
	m.state = next
	m.err = cause
	return nil
}

// Run drives Idle/Success/Error → Loading → Success|Error around fn.
func (m *Machine) Run(fn func() error) error {
	if _, err := m.Fire(Submit); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if ferr := m.Fail(err); ferr != nil {
			return ferr
		}
		return err
	}
	_, err := m.Fire(Succeed)
	return err
}
