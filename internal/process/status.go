package process

import "time"

// Status is a point-in-time view of a Process.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitCode  int       `json:"exit_code"`
	ExitErr   error     `json:"-"`
}

// Uptime is the time since start for a running process, or the run length of an
// exited one.
func (s Status) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.Running || s.StoppedAt.IsZero() {
		return now.Sub(s.StartedAt)
	}
	return s.StoppedAt.Sub(s.StartedAt)
}
