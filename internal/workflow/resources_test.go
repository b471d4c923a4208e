package workflow

import (
	"errors"
	"testing"

	"bibtag/internal/services"
	"bibtag/internal/testsupport"
)

func TestResourceMonitorFlagsDiskFloorBreach(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// A petabyte floor is unsatisfiable, so the first sample must pause.
	cfg.Workflow.MinFreeDiskGiB = 1 << 20
	cfg.Workflow.MaxResidentMemoryMiB = 0

	monitor := newResourceMonitor(cfg, nil)
	monitor.sample()

	if !monitor.Constrained() {
		t.Fatal("expected intake pause below the disk floor")
	}
	err := monitor.Err()
	if err == nil {
		t.Fatal("expected a pause error while constrained")
	}
	if !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("pause error = %v, want ErrResourceExhausted", err)
	}
	if services.FailureReason(err) != "resources" {
		t.Errorf("failure reason = %q, want resources", services.FailureReason(err))
	}

	monitor.minFreeDisk = 0
	monitor.sample()
	if monitor.Constrained() {
		t.Fatal("expected pause to clear once the floor is satisfiable")
	}
	if monitor.Err() != nil {
		t.Fatalf("expected nil pause error, got %v", monitor.Err())
	}
}
