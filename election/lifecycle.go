// Package election implements the election lifecycle state machine and the
// gates deciding which voter operations are valid at a given time.
//
//	UPCOMING -> READY <-> PAUSED -> ENDED -> RESULTS
//	any non-terminal state -> CANCELED
//
// CANCELED and RESULTS are terminal.
package election

import (
	"errors"
	"fmt"
	"time"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/types"
)

// ErrInvalidTransition is returned for a status change not allowed by the lifecycle.
var ErrInvalidTransition = errors.New("invalid election status transition")

var transitions = map[types.ElectionStatus][]types.ElectionStatus{
	types.StatusUpcoming: {types.StatusReady, types.StatusCanceled},
	types.StatusReady:    {types.StatusPaused, types.StatusEnded, types.StatusCanceled},
	types.StatusPaused:   {types.StatusReady, types.StatusEnded, types.StatusCanceled},
	types.StatusEnded:    {types.StatusResults, types.StatusCanceled},
}

// Transition validates a status change.
func Transition(from, to types.ElectionStatus) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// StatusAt returns the status of e at the given time. Time drives UPCOMING,
// READY and ENDED; the administrative states recorded on the election
// (PAUSED, CANCELED, RESULTS) take precedence while they apply.
func StatusAt(e *types.Election, now time.Time) types.ElectionStatus {
	ended := !e.EndDate.IsZero() && now.After(e.EndDate)
	switch e.Status {
	case types.StatusCanceled, types.StatusResults, types.StatusEnded:
		return e.Status
	case types.StatusPaused:
		if ended {
			return types.StatusEnded
		}
		return types.StatusPaused
	}
	switch {
	case e.StartDate != nil && now.Before(*e.StartDate):
		return types.StatusUpcoming
	case ended:
		return types.StatusEnded
	default:
		return types.StatusReady
	}
}

// Machine tracks the lifecycle of one election. It is not safe for
// concurrent use; each voter flow owns its own machine.
type Machine struct {
	election *types.Election
	now      func() time.Time
}

// NewMachine returns a machine over e. A nil clock uses time.Now.
func NewMachine(e *types.Election, clock func() time.Time) *Machine {
	if clock == nil {
		clock = time.Now
	}
	return &Machine{election: e, now: clock}
}

// Election returns the tracked election record.
func (m *Machine) Election() *types.Election { return m.election }

// Status returns the current status.
func (m *Machine) Status() types.ElectionStatus {
	return StatusAt(m.election, m.now())
}

func (m *Machine) set(to types.ElectionStatus) error {
	if err := Transition(m.Status(), to); err != nil {
		return err
	}
	m.election.Status = to
	return nil
}

// Pause suspends a READY election.
func (m *Machine) Pause() error { return m.set(types.StatusPaused) }

// Resume reopens a PAUSED election.
func (m *Machine) Resume() error { return m.set(types.StatusReady) }

// End closes the election before its end date.
func (m *Machine) End() error { return m.set(types.StatusEnded) }

// Cancel aborts the election from any non-terminal state.
func (m *Machine) Cancel() error { return m.set(types.StatusCanceled) }

// Publish marks the results as published.
func (m *Machine) Publish() error { return m.set(types.StatusResults) }

// CanAuthenticate tells whether a voter may request a CSP token now.
// UPCOMING and PAUSED return api.ErrNotYetOpen, so the caller backs off and
// polls again; ENDED, CANCELED and RESULTS return api.ErrElectionClosed.
func (m *Machine) CanAuthenticate() error {
	return gate(m.election, m.Status())
}

// CanSubmit tells whether a ballot may be submitted now. It follows the same
// rules as CanAuthenticate.
func (m *Machine) CanSubmit() error {
	return gate(m.election, m.Status())
}

// CanReadResults tells whether results are readable. Hidden results are
// only readable once published.
func (m *Machine) CanReadResults() error {
	status := m.Status()
	switch {
	case status == types.StatusUpcoming:
		return fmt.Errorf("%w: election %x has not started", api.ErrNotYetOpen, m.election.ElectionID)
	case status == types.StatusCanceled:
		return fmt.Errorf("%w: election %x was canceled", api.ErrElectionClosed, m.election.ElectionID)
	case m.election.HiddenResults && status != types.StatusResults:
		return fmt.Errorf("%w: results of election %x are hidden until published",
			api.ErrNotYetOpen, m.election.ElectionID)
	}
	return nil
}

func gate(e *types.Election, status types.ElectionStatus) error {
	switch status {
	case types.StatusReady:
		return nil
	case types.StatusUpcoming:
		return fmt.Errorf("%w: election %x starts at %s",
			api.ErrNotYetOpen, e.ElectionID, e.StartDate.Format(time.RFC3339))
	case types.StatusPaused:
		return fmt.Errorf("%w: election %x is paused", api.ErrNotYetOpen, e.ElectionID)
	default:
		return fmt.Errorf("%w: election %x is %s", api.ErrElectionClosed, e.ElectionID, status)
	}
}
