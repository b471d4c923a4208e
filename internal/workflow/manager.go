package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bibtag/internal/config"
	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/stage"
	"bibtag/internal/temporal"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Decoder    stage.Handler
	Recognizer stage.Handler
	Corrector  stage.Handler
	Matcher    stage.Handler
	Committer  stage.Handler
}

// stagePool describes one worker pool and the status edge it services.
type stagePool struct {
	name       string
	handler    stage.Handler
	start      queue.Status
	processing queue.Status
	done       queue.Status
	workers    int

	// claimsWaiting re-polls temporal-wait items alongside the start status.
	claimsWaiting bool
	// gated pools stop claiming while a resource ceiling is breached.
	gated bool
}

// Manager coordinates queue processing for one run.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	index  *temporal.Index
	logger *slog.Logger

	runID        string
	pollInterval time.Duration
	waitCutoff   time.Duration

	heartbeat *HeartbeatMonitor
	resources *resourceMonitor
	pools     []*stagePool

	mu        sync.RWMutex
	running   bool
	started   time.Time
	counters  map[queue.Status]int
	lastErr   error
	lastItem  *queue.Item
	ingestEnd bool
	indexDone bool

	claimCancel context.CancelFunc
	execCancel  context.CancelFunc
	execCtx     context.Context
	wg          sync.WaitGroup
	auxWG       sync.WaitGroup
	drained     chan struct{}
	drainedOnce sync.Once
}

// NewManager constructs a workflow manager for the given run. The temporal
// index may be nil when no correction stage is configured.
func NewManager(cfg *config.Config, store *queue.Store, index *temporal.Index, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		index:        index,
		logger:       logger,
		pollInterval: secondsOrDefault(cfg.Workflow.QueuePollInterval, 1),
		waitCutoff:   secondsOrDefault(cfg.Workflow.QueuePollInterval, 1),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			secondsOrDefault(cfg.Workflow.HeartbeatInterval, 15),
			secondsOrDefault(cfg.Workflow.HeartbeatTimeout, 120),
		),
		resources: newResourceMonitor(cfg, logger),
		counters:  make(map[queue.Status]int),
		drained:   make(chan struct{}),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow runs.
func (m *Manager) ConfigureStages(set StageSet) {
	pools := make([]*stagePool, 0, 5)
	if set.Decoder != nil {
		pools = append(pools, &stagePool{
			name:       "decoding",
			handler:    set.Decoder,
			start:      queue.StatusPending,
			processing: queue.StatusDecoding,
			done:       queue.StatusDecoded,
			workers:    workersOrDefault(m.cfg.Workflow.DecodeWorkers, 2),
			gated:      true,
		})
	}
	if set.Recognizer != nil {
		pools = append(pools, &stagePool{
			name:       "recognition",
			handler:    set.Recognizer,
			start:      queue.StatusDecoded,
			processing: queue.StatusRecognizing,
			done:       queue.StatusRecognized,
			workers:    workersOrDefault(m.cfg.Workflow.RecognizeWorkers, 4),
		})
	}
	if set.Corrector != nil {
		pools = append(pools, &stagePool{
			name:          "correction",
			handler:       set.Corrector,
			start:         queue.StatusRecognized,
			processing:    queue.StatusCorrecting,
			done:          queue.StatusCorrected,
			workers:       workersOrDefault(m.cfg.Workflow.MatchWorkers, 2),
			claimsWaiting: true,
		})
	}
	if set.Matcher != nil {
		matchStart := queue.StatusCorrected
		if set.Corrector == nil {
			matchStart = queue.StatusRecognized
		}
		pools = append(pools, &stagePool{
			name:       "matching",
			handler:    set.Matcher,
			start:      matchStart,
			processing: queue.StatusMatching,
			done:       queue.StatusMatched,
			workers:    workersOrDefault(m.cfg.Workflow.MatchWorkers, 2),
		})
	}
	if set.Committer != nil {
		pools = append(pools, &stagePool{
			name:       "committing",
			handler:    set.Committer,
			start:      queue.StatusMatched,
			processing: queue.StatusCommitting,
			done:       queue.StatusCompleted,
			workers:    workersOrDefault(m.cfg.Workflow.CommitWorkers, 2),
		})
	}

	m.mu.Lock()
	m.pools = pools
	m.mu.Unlock()
}

// Start begins processing items for runID. Cancel the supplied context to
// abort in-flight work; use Stop for a cooperative drain.
func (m *Manager) Start(ctx context.Context, runID string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	m.runID = runID
	m.running = true
	m.started = time.Now()
	m.drained = make(chan struct{})
	m.drainedOnce = sync.Once{}

	execCtx, execCancel := context.WithCancel(ctx)
	claimCtx, claimCancel := context.WithCancel(execCtx)
	m.execCtx = execCtx
	m.execCancel = execCancel
	m.claimCancel = claimCancel

	pools := m.pools
	m.mu.Unlock()

	for _, pool := range pools {
		for slot := 0; slot < pool.workers; slot++ {
			m.wg.Add(1)
			go m.runWorker(claimCtx, pool, slot)
		}
	}

	m.auxWG.Add(3)
	go m.runReclaimLoop(execCtx)
	go m.runResourceLoop(execCtx)
	go m.runCompletionLoop(execCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldRunID, runID),
		logging.Int("pools", len(pools)),
		logging.String(logging.FieldEventType, "workflow_start"))
	return nil
}

// MarkIngestComplete records that no further items will be enqueued for this
// run. Completion detection and temporal-cluster finalization depend on it.
func (m *Manager) MarkIngestComplete() {
	m.mu.Lock()
	m.ingestEnd = true
	m.mu.Unlock()
}

// Done is closed once every item has reached a terminal status after ingest
// completed.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drained
}

// Stop requests a cooperative stop: workers finish the stage they are in,
// persist the item, and exit. Blocks until all workers have drained.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	claimCancel := m.claimCancel
	execCancel := m.execCancel
	m.claimCancel = nil
	m.execCancel = nil
	m.mu.Unlock()

	claimCancel()
	m.wg.Wait()
	execCancel()
	m.auxWG.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		copied := *item
		m.lastItem = &copied
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}

func (m *Manager) markDrained() {
	m.drainedOnce.Do(func() { close(m.drained) })
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func workersOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
