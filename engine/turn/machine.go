// Package turn tracks the page-turn animation lifecycle: either idle, or one
// active turn whose progress only ever moves forward. Completing a turn is
// the only event that may change the viewer's current page.
package turn

import (
	"errors"
	"time"
)

// Errors returned by Request.
var (
	// ErrTurnActive reports a turn request while another turn is running.
	// Requests are rejected, not queued.
	ErrTurnActive = errors.New("a page turn is already active")
	// ErrTurnOutOfRange reports a turn whose target would leave the document.
	ErrTurnOutOfRange = errors.New("turn target page out of range")
)

// DefaultDuration is the wall-clock length of one page turn.
const DefaultDuration = 650 * time.Millisecond

// Direction of a page turn.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// delta is the page offset the turn applies on completion.
func (d Direction) delta() int {
	if d == Backward {
		return -1
	}
	return 1
}

// Sign gives the rotation direction about the hinge: forward turns rotate
// toward the left hinge (negative), backward turns mirror it.
func (d Direction) Sign() float64 {
	if d == Backward {
		return 1
	}
	return -1
}

// Turn describes one active page-turn animation.
type Turn struct {
	Direction  Direction
	SourcePage int
	TargetPage int
}

// Machine is the transition state machine. It is not safe for concurrent
// use; the owning viewer serializes access.
type Machine struct {
	duration time.Duration

	active  bool
	turn    Turn
	elapsed time.Duration
}

// NewMachine creates an idle machine. Durations <= 0 fall back to
// DefaultDuration. The duration applies uniformly regardless of direction.
func NewMachine(duration time.Duration) *Machine {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Machine{duration: duration}
}

// Request starts a turn away from the current page. It rejects re-entrant
// requests (ErrTurnActive) and targets outside [0, pageCount)
// (ErrTurnOutOfRange); a rejected request changes nothing. On acceptance
// progress restarts at zero.
func (m *Machine) Request(direction Direction, currentPage, pageCount int) (Turn, error) {
	if m.active {
		return Turn{}, ErrTurnActive
	}
	targetPage := currentPage + direction.delta()
	if targetPage < 0 || targetPage >= pageCount {
		return Turn{}, ErrTurnOutOfRange
	}
	m.active = true
	m.elapsed = 0
	m.turn = Turn{
		Direction:  direction,
		SourcePage: currentPage,
		TargetPage: targetPage,
	}
	return m.turn, nil
}

// Advance moves the animation clock forward by dt and reports whether this
// step completed the turn. On completion the machine returns to idle with
// progress pinned at 1.0; the returned turn's TargetPage is the new current
// page. Non-positive dt and idle machines are no-ops.
func (m *Machine) Advance(dt time.Duration) (Turn, bool) {
	if !m.active || dt <= 0 {
		return Turn{}, false
	}
	m.elapsed += dt
	if m.elapsed >= m.duration {
		m.elapsed = m.duration
		m.active = false
		return m.turn, true
	}
	return m.turn, false
}

// Active reports whether a turn is running.
func (m *Machine) Active() bool {
	return m.active
}

// Current returns the active turn, if any.
func (m *Machine) Current() (Turn, bool) {
	return m.turn, m.active
}

// Progress is the raw time fraction in [0, 1]. It is non-decreasing within
// one turn and resets only when a new turn begins.
func (m *Machine) Progress() float64 {
	if m.duration <= 0 {
		return 0
	}
	return float64(m.elapsed) / float64(m.duration)
}

// Eased is the ease-in-ease-out remapping of Progress that drives the
// presentation geometry.
func (m *Machine) Eased() float64 {
	return EaseInOutCubic(m.Progress())
}
