package client

import (
	"fmt"
	"time"
)

// GatewayStatus mirrors the gateway status document served by the panel.
type GatewayStatus struct {
	Running       bool       `json:"running"`
	PID           int        `json:"pid,omitempty"`
	Port          int        `json:"port,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UptimeSeconds float64    `json:"uptime_seconds,omitempty"`
	Resources     *Resources `json:"resources,omitempty"`
}

// Resources is the latest CPU/memory sample of the gateway process.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GatewayResponse is returned by the start and stop endpoints.
type GatewayResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Status  GatewayStatus `json:"status"`
}

// CommandResult is the outcome of one agent tool invocation run by the panel.
type CommandResult struct {
	Success    bool   `json:"success"`
	Outcome    string `json:"outcome"`
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Message    string `json:"message"`
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// APIError is returned for any non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}
