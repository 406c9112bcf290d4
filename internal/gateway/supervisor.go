// Package gateway supervises the single long-running "openclaw gateway" process.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/loykin/clawpanel/internal/env"
	"github.com/loykin/clawpanel/internal/history"
	"github.com/loykin/clawpanel/internal/logbuf"
	"github.com/loykin/clawpanel/internal/metrics"
	"github.com/loykin/clawpanel/internal/process"
)

const (
	Name               = "gateway"
	DefaultPort        = 18789
	DefaultStopTimeout = 10 * time.Second

	// MaxLineBytes caps one buffered output line; the rest of a longer line is dropped.
	MaxLineBytes = 64 << 10
)

type Config struct {
	Binary      string        `mapstructure:"binary"`
	WorkDir     string        `mapstructure:"work_dir"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	LogCapacity int           `mapstructure:"log_capacity"`
}

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEnv sets the environment layered on top of the OS environment for every start.
func WithEnv(e *env.Env) Option {
	return func(s *Supervisor) {
		if e != nil {
			s.env = e
		}
	}
}

func WithHistory(d *history.Dispatcher) Option {
	return func(s *Supervisor) { s.hist = d }
}

// WithOutputFile tees every drained line into w, e.g. a rotating log file.
func WithOutputFile(w io.Writer) Option {
	return func(s *Supervisor) { s.output = w }
}

// Supervisor owns at most one live gateway instance. Check-and-record of the
// instance happens under mu; the log ring has its own lock.
type Supervisor struct {
	binary      string
	workDir     string
	stopTimeout time.Duration
	env         *env.Env
	logger      *slog.Logger
	hist        *history.Dispatcher
	output      io.Writer
	ring        *logbuf.Ring

	mu     sync.Mutex
	proc   *process.Process
	port   int
	last   *process.Process // most recently cleared instance
	drains map[*os.File]struct{}
	closed bool
}

func New(cfg Config, opts ...Option) *Supervisor {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "openclaw"
	}
	st := cfg.StopTimeout
	if st <= 0 {
		st = DefaultStopTimeout
	}
	s := &Supervisor{
		binary:      binary,
		workDir:     cfg.WorkDir,
		stopTimeout: st,
		env:         env.New(),
		logger:      slog.Default(),
		ring:        logbuf.New(cfg.LogCapacity),
		drains:      make(map[*os.File]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", Name)
	return s
}

// Start launches "<binary> gateway --port <port>" and returns without waiting for
// it to become ready. A port <= 0 selects DefaultPort.
func (s *Supervisor) Start(port int) error {
	if port <= 0 {
		port = DefaultPort
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.proc != nil {
		if s.proc.DetectAlive() {
			return ErrAlreadyRunning
		}
		s.clearLocked()
	}

	p := process.New(process.Spec{
		Name:    Name,
		Binary:  s.binary,
		Args:    []string{"gateway", "--port", strconv.Itoa(port)},
		WorkDir: s.workDir,
	})
	cmd := p.ConfigureCmd(s.env.Merge())
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("gateway output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if err := p.TryStart(cmd); err != nil {
		_ = r.Close()
		_ = w.Close()
		if process.IsNotFound(err) {
			return fmt.Errorf("%w: %s: %v", ErrExecutableNotFound, s.binary, err)
		}
		return fmt.Errorf("start gateway: %w", err)
	}
	// the child holds its own copy of the write end; EOF arrives once it exits
	_ = w.Close()

	s.proc = p
	s.port = port
	s.drains[r] = struct{}{}
	st := p.Snapshot()

	go s.drain(r)
	go s.watch(p, port)

	metrics.IncGatewayStart()
	metrics.SetGatewayRunning(true)
	s.hist.Emit(history.NewEvent(history.EventStart, history.Record{
		Name: Name, PID: st.PID, Port: port, StartedAt: st.StartedAt,
	}))
	s.logger.Info("gateway started", "pid", st.PID, "port", port, "cmd", p.Spec().CommandLine())
	return nil
}

// Stop terminates the tracked gateway. The tracked instance is cleared even when
// the process had to be killed after the stop timeout.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.proc
	port := s.port
	if p == nil || !p.DetectAlive() {
		if p != nil {
			s.clearLocked()
		}
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.mu.Unlock()

	err := p.Stop(s.stopTimeout)
	forced := err != nil

	s.mu.Lock()
	if s.proc == p {
		s.clearLocked()
	}
	s.mu.Unlock()

	st := p.Snapshot()
	metrics.IncGatewayStop(forced)
	rec := history.Record{Name: Name, PID: st.PID, Port: port, StartedAt: st.StartedAt}
	if !st.StoppedAt.IsZero() {
		stopped := st.StoppedAt
		rec.StoppedAt = &stopped
	}
	s.hist.Emit(history.NewEvent(history.EventStop, rec))

	if forced {
		s.logger.Warn("gateway ignored SIGTERM, killed", "pid", st.PID, "timeout", s.stopTimeout)
		return fmt.Errorf("%w (%s)", ErrStopTimeout, s.stopTimeout)
	}
	s.logger.Info("gateway stopped", "pid", st.PID)
	return nil
}

// Status polls liveness without blocking and forgets an instance that has exited.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil && !s.proc.DetectAlive() {
		s.clearLocked()
	}
	if s.proc == nil {
		out := Status{}
		if s.last != nil {
			last := s.last.Snapshot()
			out.PID = last.PID
			if !last.StartedAt.IsZero() {
				t := last.StartedAt
				out.StartedAt = &t
			}
			if !last.StoppedAt.IsZero() {
				t := last.StoppedAt
				out.StoppedAt = &t
				code := last.ExitCode
				out.ExitCode = &code
			}
			if last.ExitErr != nil {
				out.LastError = last.ExitErr.Error()
			}
		}
		return out
	}
	st := s.proc.Snapshot()
	started := st.StartedAt
	return Status{
		Running:       true,
		PID:           st.PID,
		Port:          s.port,
		StartedAt:     &started,
		UptimeSeconds: st.Uptime(time.Now()).Seconds(),
	}
}

// PID returns the pid of the live gateway or 0.
func (s *Supervisor) PID() int {
	st := s.Status()
	if !st.Running {
		return 0
	}
	return st.PID
}

// Tail returns up to n of the most recent output lines, oldest first.
func (s *Supervisor) Tail(n int) []string { return s.ring.Tail(n) }

// LogCapacity reports how many lines the output buffer retains.
func (s *Supervisor) LogCapacity() int { return s.ring.Cap() }

// Close stops a live gateway and ends every drain loop. Start fails afterwards.
// If ctx expires before the gateway exits it is killed.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	p := s.proc
	s.mu.Unlock()

	var err error
	if p != nil && p.DetectAlive() {
		done := make(chan error, 1)
		go func() { done <- s.Stop() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			p.Kill()
			err = ctx.Err()
		}
	}

	s.mu.Lock()
	for r := range s.drains {
		_ = r.Close()
		delete(s.drains, r)
	}
	s.mu.Unlock()
	return err
}

func (s *Supervisor) clearLocked() {
	s.last = s.proc
	s.proc = nil
	s.port = 0
	metrics.SetGatewayRunning(false)
}

// drain copies merged stdout/stderr lines into the ring until EOF or Close.
func (s *Supervisor) drain(r *os.File) {
	defer func() {
		s.mu.Lock()
		delete(s.drains, r)
		s.mu.Unlock()
		_ = r.Close()
	}()
	br := bufio.NewReaderSize(r, MaxLineBytes)
	truncating := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 && !truncating {
			s.appendLine(strings.ToValidUTF8(strings.TrimRightFunc(string(chunk), unicode.IsSpace), "\uFFFD"))
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			truncating = true
			continue
		}
		if err != nil {
			return
		}
		truncating = false
	}
}

func (s *Supervisor) appendLine(line string) {
	s.ring.Append(line)
	metrics.IncGatewayLogLine()
	if s.output != nil {
		_, _ = io.WriteString(s.output, line+"\n")
	}
}

// watch reaps one instance and records its exit.
func (s *Supervisor) watch(p *process.Process, port int) {
	err := p.Wait()
	st := p.Snapshot()
	metrics.IncGatewayExit(strconv.Itoa(st.ExitCode))

	s.mu.Lock()
	if s.proc == p {
		metrics.SetGatewayRunning(false)
	}
	s.mu.Unlock()

	rec := history.Record{Name: Name, PID: st.PID, Port: port, ExitCode: st.ExitCode, StartedAt: st.StartedAt}
	if !st.StoppedAt.IsZero() {
		stopped := st.StoppedAt
		rec.StoppedAt = &stopped
	}
	if err != nil {
		rec.ExitErr = err.Error()
	}
	s.hist.Emit(history.NewEvent(history.EventExit, rec))
	s.logger.Info("gateway exited", "pid", st.PID, "exit_code", st.ExitCode, "error", err)
}
