package settings

import (
	"errors"
	"fmt"
)

// ErrConfigParse is returned by LoadStrict and Replace when the input is not a JSON object.
var ErrConfigParse = errors.New("config document is not a valid JSON object")

// WriteError reports a failed Save. The previous document on disk is left intact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write config %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }
