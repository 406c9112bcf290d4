package process

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// killGrace bounds how long Stop and Kill wait for the exit to be observed after
// SIGKILL.
const killGrace = 500 * time.Millisecond

// groupSignal is the signal sender used by Stop and Kill.
var groupSignal = signalGroup

// Process tracks one run of a Spec. Exactly one goroutine must call Wait per run;
// Stop, Kill and DetectAlive coordinate with it through the done channel.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	procStart int64 // OS start time of the child in unix seconds, 0 when unknown
	waitDone  chan struct{}
}

func New(spec Spec) *Process { return &Process{spec: spec} }

func (r *Process) Spec() Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// ConfigureCmd builds *exec.Cmd for this process using mergedEnv.
// It sets workdir, environment and process group attributes. Output wiring is left
// to the caller.
func (r *Process) ConfigureCmd(mergedEnv []string) *exec.Cmd {
	spec := r.Spec()
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)
	return cmd
}

// TryStart starts the command and records the run.
func (r *Process) TryStart(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	r.setStarted(cmd)
	return nil
}

func (r *Process) setStarted(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	start := getProcStartUnix(pid)
	r.mu.Lock()
	r.cmd = cmd
	r.waitDone = make(chan struct{})
	r.procStart = start
	r.status = Status{
		Name:      r.spec.Name,
		Running:   true,
		PID:       pid,
		StartedAt: time.Now(),
	}
	r.mu.Unlock()
}

// Wait blocks until the process exits, records the outcome and releases every
// goroutine blocked on Done.
func (r *Process) Wait() error {
	r.mu.Lock()
	cmd := r.cmd
	done := r.waitDone
	r.mu.Unlock()
	if cmd == nil || done == nil {
		return ErrNotStarted
	}
	err := cmd.Wait()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.status.ExitCode = code
	r.mu.Unlock()
	close(done)
	return err
}

// Done is closed once Wait has observed the exit. It is nil before the first start.
func (r *Process) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitDone
}

// Exited reports whether the current run has been reaped.
func (r *Process) Exited() bool {
	done := r.Done()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// DetectAlive probes liveness without blocking. A reaped run, a zombie, a missing
// pid and a pid that now belongs to a different process all count as not alive.
func (r *Process) DetectAlive() bool {
	r.mu.Lock()
	cmd := r.cmd
	start := r.procStart
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil || r.Exited() {
		return false
	}
	pid := cmd.Process.Pid
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	if !processExists(pid) {
		return false
	}
	if start > 0 {
		if cur := getProcStartUnix(pid); cur > 0 && cur != start {
			return false
		}
	}
	return true
}

// Stop sends SIGTERM to the process group and waits up to wait for the exit. When the
// deadline passes the group is killed and ErrStopTimeout is returned.
func (r *Process) Stop(wait time.Duration) error {
	r.mu.Lock()
	cmd := r.cmd
	done := r.waitDone
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil || done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	default:
	}
	pid := cmd.Process.Pid
	_ = groupSignal(pid, syscall.SIGTERM)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
	}
	_ = groupSignal(pid, syscall.SIGKILL)
	select {
	case <-done:
	case <-time.After(killGrace):
	}
	return ErrStopTimeout
}

// Kill sends SIGKILL to the process group and waits briefly for the exit. A run
// that was already reaped is left alone; its group id may belong to someone else.
func (r *Process) Kill() {
	r.mu.Lock()
	cmd := r.cmd
	done := r.waitDone
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil || done == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}
	_ = groupSignal(cmd.Process.Pid, syscall.SIGKILL)
	select {
	case <-done:
	case <-time.After(killGrace):
	}
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
