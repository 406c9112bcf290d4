package gateway

import "errors"

var (
	ErrExecutableNotFound = errors.New("gateway executable not found")
	ErrAlreadyRunning     = errors.New("gateway already running")
	ErrNotRunning         = errors.New("gateway not running")
	ErrStopTimeout        = errors.New("gateway did not exit before the stop timeout")
	ErrClosed             = errors.New("gateway supervisor closed")
)
