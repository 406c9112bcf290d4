package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample holds CPU and memory figures for one observation of a process.
type ProcessSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

type SamplerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	HistorySize int           `mapstructure:"history_size"`
}

// ProcessSampler periodically samples the resource usage of the tracked gateway pid.
type ProcessSampler struct {
	enabled     bool
	interval    time.Duration
	historySize int

	mu      sync.RWMutex
	handle  *process.Process // reused across ticks so CPUPercent sees a delta
	last    ProcessSample
	hasLast bool
	history []ProcessSample

	cpu     prometheus.Gauge
	rss     prometheus.Gauge
	threads prometheus.Gauge
	fds     prometheus.Gauge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewProcessSampler(cfg SamplerConfig) *ProcessSampler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = 120
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clawpanel",
			Subsystem: "gateway",
			Name:      name,
			Help:      help,
		})
	}
	return &ProcessSampler{
		enabled:     cfg.Enabled,
		interval:    interval,
		historySize: size,
		cpu:         gauge("cpu_percent", "CPU usage percentage of the gateway process."),
		rss:         gauge("memory_rss_bytes", "Resident memory of the gateway process."),
		threads:     gauge("num_threads", "Number of threads of the gateway process."),
		fds:         gauge("num_fds", "Open file descriptors of the gateway process (Unix only)."),
		stopCh:      make(chan struct{}),
	}
}

func (s *ProcessSampler) IsEnabled() bool { return s.enabled }

// Register registers the sampler gauges. Already registered collectors are kept.
func (s *ProcessSampler) Register(r prometheus.Registerer) error {
	if !s.enabled {
		return nil
	}
	cs := []prometheus.Collector{s.cpu, s.rss, s.threads}
	if runtime.GOOS != "windows" {
		cs = append(cs, s.fds)
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples pid() every interval until ctx is done or Stop is called.
// A pid of 0 means nothing is running and resets the gauges.
func (s *ProcessSampler) Start(ctx context.Context, pid func() int) {
	if !s.enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				p := pid()
				if p <= 0 {
					s.reset()
					continue
				}
				if _, err := s.Sample(p); err != nil {
					slog.Debug("gateway sample failed", "pid", p, "error", err)
				}
			}
		}
	}()
}

func (s *ProcessSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sample takes one observation of pid, updates the gauges and appends to history.
func (s *ProcessSampler) Sample(pid int) (ProcessSample, error) {
	s.mu.Lock()
	h := s.handle
	if h == nil || h.Pid != int32(pid) {
		var err error
		h, err = process.NewProcess(int32(pid))
		if err != nil {
			s.mu.Unlock()
			return ProcessSample{}, fmt.Errorf("open process %d: %w", pid, err)
		}
		s.handle = h
	}
	s.mu.Unlock()

	mem, err := h.MemoryInfo()
	if err != nil {
		return ProcessSample{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := h.CPUPercent()
	if err != nil {
		cpu = 0
	}
	threads, err := h.NumThreads()
	if err != nil {
		threads = 0
	}
	sample := ProcessSample{
		PID:        int32(pid),
		CPUPercent: cpu,
		MemoryRSS:  mem.RSS,
		MemoryVMS:  mem.VMS,
		NumThreads: threads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if n, err := h.NumFDs(); err == nil {
			sample.NumFDs = n
		}
	}

	s.cpu.Set(sample.CPUPercent)
	s.rss.Set(float64(sample.MemoryRSS))
	s.threads.Set(float64(sample.NumThreads))
	s.fds.Set(float64(sample.NumFDs))

	s.mu.Lock()
	s.last = sample
	s.hasLast = true
	s.history = append(s.history, sample)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]ProcessSample(nil), s.history[over:]...)
	}
	s.mu.Unlock()
	return sample, nil
}

func (s *ProcessSampler) reset() {
	s.mu.Lock()
	s.handle = nil
	s.hasLast = false
	s.mu.Unlock()
	s.cpu.Set(0)
	s.rss.Set(0)
	s.threads.Set(0)
	s.fds.Set(0)
}

// Latest returns the most recent sample while a process is being observed.
func (s *ProcessSampler) Latest() (ProcessSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// History returns a copy of the retained samples, oldest first.
func (s *ProcessSampler) History() []ProcessSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProcessSample(nil), s.history...)
}
