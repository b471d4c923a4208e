package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bibtag/internal/config"
	"bibtag/internal/imagefile"
	"bibtag/internal/logging"
	"bibtag/internal/queue"
	"bibtag/internal/services"
	"bibtag/internal/stage"
	"bibtag/internal/testsupport"
)

// stubHandler mirrors the real handlers' shape: one value serves every
// worker in its pool and the logger field is read concurrently during
// execution.
type stubHandler struct {
	name     string
	logger   *slog.Logger
	execs    atomic.Int64
	prepare  func(*queue.Item) error
	execute  func(*queue.Item) error
	healthOK bool
}

func newStubHandler(name string) *stubHandler {
	return &stubHandler{name: name, logger: logging.NewNop(), healthOK: true}
}

func (h *stubHandler) Prepare(ctx context.Context, item *queue.Item) error {
	if h.prepare != nil {
		return h.prepare(item)
	}
	return nil
}

func (h *stubHandler) Execute(ctx context.Context, item *queue.Item) error {
	h.execs.Add(1)
	logging.WithContext(ctx, h.logger).Debug("stage executed", logging.Int64("item", item.ID))
	if h.execute != nil {
		return h.execute(item)
	}
	return nil
}

func (h *stubHandler) HealthCheck(ctx context.Context) stage.Health {
	if h.healthOK {
		return stage.Healthy(h.name)
	}
	return stage.Unhealthy(h.name, "stub unhealthy")
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.CounterRefreshInterval = 1
	cfg.Workflow.ResourceSampleInterval = 1
	cfg.Workflow.DecodeWorkers = 1
	cfg.Workflow.RecognizeWorkers = 1
	cfg.Workflow.MatchWorkers = 1
	cfg.Workflow.CommitWorkers = 1
	return cfg
}

func startManager(t *testing.T, cfg *config.Config, store *queue.Store, set StageSet, runID string) *Manager {
	t.Helper()
	manager := NewManager(cfg, store, nil, nil)
	manager.ConfigureStages(set)
	if err := manager.Start(context.Background(), runID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func waitForDrain(t *testing.T, manager *Manager) {
	t.Helper()
	select {
	case <-manager.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("run did not drain in time")
	}
}

func fullStubSet() (StageSet, *stubHandler) {
	decoder := newStubHandler("decoding")
	return StageSet{
		Decoder:    decoder,
		Recognizer: newStubHandler("recognition"),
		Corrector:  newStubHandler("correction"),
		Matcher:    newStubHandler("matching"),
		Committer:  newStubHandler("committing"),
	}, decoder
}

func TestManagerProcessesRunToCompletion(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	first := testsupport.NewItem(t, store, run.ID, "/photos/a.jpg", imagefile.KindJPEG)
	second := testsupport.NewItem(t, store, run.ID, "/photos/b.jpg", imagefile.KindJPEG)

	set, _ := fullStubSet()
	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()
	waitForDrain(t, manager)

	for _, id := range []int64{first.ID, second.ID} {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID(%d): %v", id, err)
		}
		if item.Status != queue.StatusCompleted {
			t.Errorf("item %d status = %s, want completed", id, item.Status)
		}
	}

	updated, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if updated.Status != queue.RunCompleted {
		t.Errorf("run status = %s, want completed", updated.Status)
	}
}

func TestManagerClassifiesStageFailures(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	broken := testsupport.NewItem(t, store, run.ID, "/photos/corrupt.jpg", imagefile.KindJPEG)
	healthy := testsupport.NewItem(t, store, run.ID, "/photos/fine.jpg", imagefile.KindJPEG)

	set, decoder := fullStubSet()
	decoder.execute = func(item *queue.Item) error {
		if item.SourcePath == "/photos/corrupt.jpg" {
			return services.Wrap(services.ErrUnreadable, "decoding", "decode", "truncated file", nil)
		}
		return nil
	}

	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()
	waitForDrain(t, manager)

	failed, err := store.GetByID(context.Background(), broken.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("broken item status = %s, want failed", failed.Status)
	}
	if failed.FailureReason != "unreadable" {
		t.Errorf("failure reason = %q, want unreadable", failed.FailureReason)
	}
	if failed.ErrorMessage == "" {
		t.Error("expected error message on failed item")
	}

	done, err := store.GetByID(context.Background(), healthy.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != queue.StatusCompleted {
		t.Errorf("healthy item status = %s, want completed", done.Status)
	}
}

func TestManagerReclaimsParkedItems(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	item := testsupport.NewItem(t, store, run.ID, "/photos/burst.jpg", imagefile.KindJPEG)

	set, _ := fullStubSet()
	corrector := newStubHandler("correction")
	corrector.execute = func(it *queue.Item) error {
		// Park once, resolve on the re-claim.
		if corrector.execs.Load() == 1 {
			it.Status = queue.StatusTemporalPending
		}
		return nil
	}
	set.Corrector = corrector

	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()
	waitForDrain(t, manager)

	final, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Errorf("item status = %s, want completed", final.Status)
	}
	if got := corrector.execs.Load(); got < 2 {
		t.Errorf("corrector executions = %d, want at least 2", got)
	}
}

func waitForStats(t *testing.T, store *queue.Store, runID string, cond func(map[queue.Status]int) bool) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := store.Stats(context.Background(), runID)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if cond(stats) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("queue never reached the expected state")
}

func TestManagerSharesHandlersAcrossWorkers(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Workflow.DecodeWorkers = 4
	cfg.Workflow.RecognizeWorkers = 4
	cfg.Workflow.MatchWorkers = 4
	cfg.Workflow.CommitWorkers = 4
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)

	const photos = 12
	ids := make([]int64, 0, photos)
	for i := 0; i < photos; i++ {
		item := testsupport.NewItem(t, store, run.ID,
			fmt.Sprintf("/photos/%02d.jpg", i), imagefile.KindJPEG)
		ids = append(ids, item.ID)
	}

	set, decoder := fullStubSet()
	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()
	waitForDrain(t, manager)

	for _, id := range ids {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID(%d): %v", id, err)
		}
		if item.Status != queue.StatusCompleted {
			t.Errorf("item %d status = %s, want completed", id, item.Status)
		}
	}
	if got := decoder.execs.Load(); got != photos {
		t.Errorf("decoder executions = %d, want %d", got, photos)
	}
}

func TestManagerResumeLeavesCompletedItemsUntouched(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	for i := 0; i < 3; i++ {
		testsupport.NewItem(t, store, run.ID, fmt.Sprintf("/photos/%d.jpg", i), imagefile.KindJPEG)
	}

	// The committer lets one photo through, then holds its worker at the
	// gate; gated photos report an interruption and stay mid-stage.
	gate := make(chan struct{})
	var firstDone atomic.Int64
	set, _ := fullStubSet()
	committer := newStubHandler("committing")
	committer.execute = func(it *queue.Item) error {
		if firstDone.CompareAndSwap(0, it.ID) || firstDone.Load() == it.ID {
			return nil
		}
		<-gate
		return context.Canceled
	}
	set.Committer = committer

	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()

	ctx := context.Background()
	waitForStats(t, store, run.ID, func(stats map[queue.Status]int) bool {
		return stats[queue.StatusCompleted] == 1 && stats[queue.StatusCommitting] >= 1
	})
	close(gate)
	waitForStats(t, store, run.ID, func(stats map[queue.Status]int) bool {
		return stats[queue.StatusCompleted] == 1 && stats[queue.StatusCommitting] == 2
	})
	manager.Stop()

	completedID := firstDone.Load()
	before, err := store.GetByID(ctx, completedID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if before.Status != queue.StatusCompleted {
		t.Fatalf("first item status = %s, want completed", before.Status)
	}

	reset, err := store.ResetInterrupted(ctx, run.ID)
	if err != nil {
		t.Fatalf("ResetInterrupted: %v", err)
	}
	if reset != 2 {
		t.Fatalf("reset %d interrupted items, want 2", reset)
	}

	resumeSet, resumeDecoder := fullStubSet()
	resumeCommitter := newStubHandler("committing")
	var mu sync.Mutex
	recommitted := make(map[int64]int)
	resumeCommitter.execute = func(it *queue.Item) error {
		mu.Lock()
		recommitted[it.ID]++
		mu.Unlock()
		return nil
	}
	resumeSet.Committer = resumeCommitter

	resumed := startManager(t, cfg, store, resumeSet, run.ID)
	resumed.MarkIngestComplete()
	waitForDrain(t, resumed)

	after, err := store.GetByID(ctx, completedID)
	if err != nil {
		t.Fatalf("GetByID after resume: %v", err)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("completed item touched on resume: %v then %v", before.UpdatedAt, after.UpdatedAt)
	}
	if got := resumeDecoder.execs.Load(); got != 0 {
		t.Errorf("decoder re-ran %d times on resume, want 0", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(recommitted) != 2 {
		t.Fatalf("recommitted %d items, want 2: %v", len(recommitted), recommitted)
	}
	if _, ok := recommitted[completedID]; ok {
		t.Error("completed item re-entered the commit stage")
	}
}

func TestManagerStatusAndProgress(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	testsupport.NewItem(t, store, run.ID, "/photos/a.jpg", imagefile.KindJPEG)

	set, _ := fullStubSet()
	manager := startManager(t, cfg, store, set, run.ID)
	manager.MarkIngestComplete()
	waitForDrain(t, manager)

	summary := manager.Status(context.Background())
	if summary.RunID != run.ID {
		t.Errorf("status run id = %q, want %q", summary.RunID, run.ID)
	}
	if len(summary.StageHealth) != 5 {
		t.Errorf("stage health entries = %d, want 5", len(summary.StageHealth))
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Errorf("stage %s unexpectedly unhealthy: %s", name, health.Detail)
		}
	}

	progress := manager.Progress()
	if progress.Completed != 1 {
		t.Errorf("progress completed = %d, want 1", progress.Completed)
	}
	if progress.Total != 1 {
		t.Errorf("progress total = %d, want 1", progress.Total)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := NewManager(cfg, store, nil, nil)
	if err := manager.Start(context.Background(), "missing"); err == nil {
		t.Fatal("expected error starting without configured stages")
	}
}

func TestBuildReportCollectsReviewItems(t *testing.T) {
	cfg := fastConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store)
	item := testsupport.NewItem(t, store, run.ID, "/photos/ambiguous.jpg", imagefile.KindJPEG)

	item.Status = queue.StatusCompleted
	item.NeedsReview = true
	item.ReviewReason = "multiple equally strong roster matches"
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	report, err := BuildReport(context.Background(), store, run.ID)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Counts[queue.StatusCompleted] != 1 {
		t.Errorf("completed count = %d, want 1", report.Counts[queue.StatusCompleted])
	}
	if len(report.Review) != 1 || report.Review[0].ItemID != item.ID {
		t.Fatalf("unexpected review list %+v", report.Review)
	}

	if _, err := BuildReport(context.Background(), store, "no-such-run"); !errors.Is(err, queue.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
