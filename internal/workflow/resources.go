package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"bibtag/internal/config"
	"bibtag/internal/logging"
	"bibtag/internal/services"
)

// resourceMonitor samples free disk and resident memory against the
// configured ceilings. A breach pauses intake of new items; in-flight work
// is never throttled.
type resourceMonitor struct {
	statePath   string
	minFreeDisk uint64
	maxResident uint64
	interval    time.Duration
	logger      *slog.Logger

	proc *process.Process

	mu          sync.RWMutex
	constrained bool
	pauseErr    error
}

func newResourceMonitor(cfg *config.Config, logger *slog.Logger) *resourceMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("resident memory sampling unavailable", logging.Error(err))
		proc = nil
	}
	return &resourceMonitor{
		statePath:   cfg.Paths.StateDir,
		minFreeDisk: uint64(cfg.Workflow.MinFreeDiskGiB) << 30,
		maxResident: uint64(cfg.Workflow.MaxResidentMemoryMiB) << 20,
		interval:    secondsOrDefault(cfg.Workflow.ResourceSampleInterval, 10),
		logger:      logging.NewComponentLogger(logger, "resource-monitor"),
		proc:        proc,
	}
}

// Constrained reports whether intake is currently paused.
func (r *resourceMonitor) Constrained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constrained
}

// Err returns the active breach tagged with services.ErrResourceExhausted,
// nil when unconstrained.
func (r *resourceMonitor) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pauseErr
}

func (r *resourceMonitor) sample() {
	reason := ""

	if r.minFreeDisk > 0 {
		var stat unix.Statfs_t
		if err := unix.Statfs(r.statePath, &stat); err != nil {
			r.logger.Warn("free disk sample failed", logging.Error(err))
		} else if free := stat.Bavail * uint64(stat.Bsize); free < r.minFreeDisk {
			reason = fmt.Sprintf("free disk %d MiB below floor %d MiB", free>>20, r.minFreeDisk>>20)
		}
	}

	if reason == "" && r.maxResident > 0 && r.proc != nil {
		mem, err := r.proc.MemoryInfo()
		if err != nil {
			r.logger.Warn("resident memory sample failed", logging.Error(err))
		} else if mem.RSS > r.maxResident {
			reason = fmt.Sprintf("resident memory %d MiB above ceiling %d MiB", mem.RSS>>20, r.maxResident>>20)
		}
	}

	r.mu.Lock()
	wasConstrained := r.constrained
	r.constrained = reason != ""
	if reason != "" {
		r.pauseErr = services.Wrap(services.ErrResourceExhausted, "workflow", "intake", reason, nil)
	} else {
		r.pauseErr = nil
	}
	r.mu.Unlock()

	if reason != "" && !wasConstrained {
		r.logger.Warn("resource ceiling breached; pausing intake",
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "resource_pause"))
	}
	if reason == "" && wasConstrained {
		r.logger.Info("resource pressure cleared; resuming intake",
			logging.String(logging.FieldEventType, "resource_resume"))
	}
}

func (m *Manager) runResourceLoop(ctx context.Context) {
	defer m.auxWG.Done()
	m.resources.sample()
	ticker := time.NewTicker(m.resources.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.resources.sample()
		}
	}
}
