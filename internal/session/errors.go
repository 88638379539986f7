package session

import "errors"

var (
	// ErrNoActiveSession is returned when an operation targets a session
	// that is not running.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("a session is already active")

	// ErrManualSession is returned when an instruction is sent to a
	// manual-editing session.
	ErrManualSession = errors.New("manual sessions do not accept instructions")
)
