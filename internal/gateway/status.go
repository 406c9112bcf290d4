package gateway

import "time"

// Status is the externally visible state of the supervised gateway.
// When Running is false the remaining fields describe the last instance, if any.
type Status struct {
	Running       bool       `json:"running"`
	PID           int        `json:"pid,omitempty"`
	Port          int        `json:"port,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UptimeSeconds float64    `json:"uptime_seconds,omitempty"`
}
