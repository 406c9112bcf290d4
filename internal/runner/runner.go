// Package runner executes one-shot agent tool subcommands and classifies the result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/clawpanel/internal/env"
	"github.com/loykin/clawpanel/internal/history"
	"github.com/loykin/clawpanel/internal/metrics"
	"github.com/loykin/clawpanel/internal/process"
)

const (
	DefaultTimeout = 30 * time.Second
	AgentTimeout   = 120 * time.Second

	// waitDelay bounds how long Wait keeps copying output after the group was killed.
	waitDelay = time.Second
)

type Config struct {
	Binary  string        `mapstructure:"binary"`
	WorkDir string        `mapstructure:"work_dir"`
	Timeout time.Duration `mapstructure:"command_timeout"`
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithEnv(e *env.Env) Option {
	return func(r *Runner) {
		if e != nil {
			r.env = e
		}
	}
}

func WithHistory(d *history.Dispatcher) Option {
	return func(r *Runner) { r.hist = d }
}

// Runner is safe for concurrent use; every Run starts its own child.
type Runner struct {
	binary  string
	workDir string
	timeout time.Duration
	env     *env.Env
	logger  *slog.Logger
	hist    *history.Dispatcher
}

func New(cfg Config, opts ...Option) *Runner {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "openclaw"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runner{
		binary:  binary,
		workDir: cfg.WorkDir,
		timeout: timeout,
		env:     env.New(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

func (r *Runner) Binary() string { return r.binary }

// Run executes "<binary> args..." and waits for it, up to timeout (the configured
// default when timeout <= 0) or until ctx is done. On expiry the child's whole
// process group is killed and reaped before Run returns. Run never fails; every
// problem is expressed in the Result.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) Result {
	if timeout <= 0 {
		timeout = r.timeout
	}
	spec := process.Spec{Name: subcommand(args), Binary: r.binary, Args: args, WorkDir: r.workDir}
	res := r.run(ctx, timeout, spec)
	r.observe(spec, res)
	return res
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, spec process.Spec) Result {
	start := time.Now()
	res := Result{Command: spec.CommandLine(), ExitCode: -1}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Success = o == OutcomeSuccess
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	p := process.New(spec)
	cmd := p.ConfigureCmd(r.env.Merge())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := p.TryStart(cmd); err != nil {
		if process.IsNotFound(err) {
			res.Message = notFoundMessage(r.binary)
			res.Stderr = res.Message
			return finish(OutcomeNotFound)
		}
		res.Message = failureMessage(-1)
		res.Stderr = err.Error()
		return finish(OutcomeFailure)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- p.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	expired := false
	select {
	case err = <-waitErr:
	case <-timer.C:
		expired = true
	case <-ctx.Done():
		expired = errors.Is(ctx.Err(), context.DeadlineExceeded)
		if !expired {
			p.Kill()
			<-waitErr
			res.Stdout = clean(stdout.String())
			res.Stderr = clean(stderr.String())
			res.Message = "cancelled"
			return finish(OutcomeFailure)
		}
	}
	if expired {
		p.Kill()
		<-waitErr
		res.Stdout = clean(stdout.String())
		res.Stderr = timeoutMessage(timeout)
		res.Message = res.Stderr
		return finish(OutcomeTimeout)
	}

	res.Stdout = clean(stdout.String())
	res.Stderr = clean(stderr.String())
	if err == nil {
		res.ExitCode = 0
		return finish(OutcomeSuccess)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		res.Message = exitMessage(ee)
	} else {
		res.Message = failureMessage(-1)
	}
	return finish(OutcomeFailure)
}

func (r *Runner) observe(spec process.Spec, res Result) {
	metrics.ObserveCommand(spec.Name, string(res.Outcome), res.Duration().Seconds())
	r.hist.Emit(history.NewEvent(history.EventCommand, history.Record{
		Name:       spec.Name,
		Command:    res.Command,
		Outcome:    string(res.Outcome),
		ExitCode:   res.ExitCode,
		ExitErr:    res.Message,
		DurationMS: res.DurationMS,
	}))
	lvl := slog.LevelDebug
	if !res.Success {
		lvl = slog.LevelWarn
	}
	r.logger.Log(context.Background(), lvl, "command finished",
		"subcommand", spec.Name, "outcome", res.Outcome, "exit_code", res.ExitCode, "duration_ms", res.DurationMS)
}

// subcommand names a run for metrics and history: the first non-flag argument.
func subcommand(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	if len(args) > 0 {
		return strings.TrimLeft(args[0], "-")
	}
	return "none"
}

func clean(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
}
