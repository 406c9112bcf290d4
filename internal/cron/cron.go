// Package cron runs agent tool subcommands on a fixed period, such as a
// periodic "health" probe. Results are kept in memory for the API.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/clawpanel/internal/runner"
)

// Commands runs one subcommand of the agent tool.
type Commands interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) runner.Result
}

// Job defines a scheduled command run.
// Schedule supports only the form "@every <duration>" (e.g., "@every 30s").
// A tick is skipped while the previous run of the same job is still active.
// Name must be unique inside one Scheduler.
type Job struct {
	Name     string
	Args     []string
	Schedule string
	Timeout  time.Duration

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	last    atomic.Pointer[Run]
}

// Run is the most recent outcome of a job.
type Run struct {
	Job      string        `json:"job"`
	At       time.Time     `json:"at"`
	Result   runner.Result `json:"result"`
	Runs     int64         `json:"runs"`
	Skipped  int64         `json:"skipped"`
	Schedule string        `json:"schedule"`
}

// parseEvery parses schedules of the form "@every <duration>".
func parseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

func (j *Job) validate() error {
	if j.Name == "" {
		return errors.New("cron job requires a name")
	}
	if j.Schedule == "" {
		return errors.New("cron job requires a schedule")
	}
	if len(j.Args) == 0 || strings.TrimSpace(j.Args[0]) == "" {
		return errors.New("cron job requires args")
	}
	if runsGateway(j.Args) {
		return errors.New("cron job cannot run the gateway; use the supervisor")
	}
	return nil
}

// runsGateway reports whether "gateway" appears as an argument. Global flags may take
// values, so the position of the subcommand cannot be told from args alone.
func runsGateway(args []string) bool {
	for _, a := range args {
		if strings.TrimSpace(a) == "gateway" {
			return true
		}
	}
	return false
}

// Scheduler runs jobs against a shared command runner.
// Use Start to launch the background tickers, and Stop to cancel them.
type Scheduler struct {
	cmds   Commands
	logger *slog.Logger
	jobs   []*Job

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cmds Commands, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cmds: cmds, logger: logger.With("component", "cron")}
}

func (s *Scheduler) Add(job *Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if _, err := parseEvery(job.Schedule); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("duplicate cron job %q", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Len reports the number of jobs added.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Start launches all job loops. Call Stop to cancel.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		d, err := parseEvery(j.Schedule)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		s.wg.Add(1)
		go s.runJob(ctx, j, d)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, j *Job, period time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !j.running.CompareAndSwap(false, true) {
				j.skipped.Add(1)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer j.running.Store(false)
				s.runOnce(ctx, j)
			}()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *Job) {
	res := s.cmds.Run(ctx, j.Timeout, j.Args...)
	n := j.runs.Add(1)
	j.last.Store(&Run{Job: j.Name, At: time.Now().UTC(), Result: res, Runs: n, Schedule: j.Schedule})
	if !res.Success {
		s.logger.Warn("scheduled command failed", "job", j.Name, "outcome", res.Outcome, "message", res.Message)
	}
}

// Stop cancels all jobs and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Runs returns the latest run of every job that has run at least once, by job name.
func (s *Scheduler) Runs() []Run {
	if s == nil {
		return nil
	}
	out := make([]Run, 0, len(s.jobs))
	for _, j := range s.jobs {
		if r := j.last.Load(); r != nil {
			cp := *r
			cp.Skipped = j.skipped.Load()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Job < out[b].Job })
	return out
}
