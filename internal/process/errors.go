package process

import (
	"errors"
	"io/fs"
	"os/exec"
)

var (
	ErrNotStarted  = errors.New("process not started")
	ErrStopTimeout = errors.New("process did not exit before stop timeout")
)

// IsNotFound reports whether a start error means the executable does not exist,
// either because PATH lookup failed or because an explicit path is missing.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
