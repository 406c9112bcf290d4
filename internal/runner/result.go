package runner

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// Outcome classifies one invocation of the agent tool.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeNotFound Outcome = "not_found"
)

// Result is the captured output of one invocation. ExitCode is -1 when the process
// never produced an exit status (timeout, not found, start failure).
type Result struct {
	Success    bool    `json:"success"`
	Outcome    Outcome `json:"outcome"`
	ExitCode   int     `json:"returncode"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	Message    string  `json:"message"`
	Command    string  `json:"command"`
	DurationMS int64   `json:"duration_ms"`
}

func (r Result) Duration() time.Duration { return time.Duration(r.DurationMS) * time.Millisecond }

func notFoundMessage(binary string) string {
	return fmt.Sprintf("%s not found; install it first", binary)
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("timed out after %s", d)
}

func failureMessage(code int) string {
	if code < 0 {
		return "tool could not be run"
	}
	return fmt.Sprintf("tool reported an error (exit code %d)", code)
}

// exitMessage describes a run the tool ended itself, by exit status or by signal.
func exitMessage(ee *exec.ExitError) string {
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return fmt.Sprintf("tool reported an error (signal: %s)", ws.Signal())
	}
	if code := ee.ExitCode(); code >= 0 {
		return failureMessage(code)
	}
	return "tool reported an error"
}
