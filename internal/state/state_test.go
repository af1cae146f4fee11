package state

import (
	"sync"
	"testing"
	"time"

	"github.com/zeroday0619/all-smi/internal/model"
)

func TestApplySnapshotAndSnapshot(t *testing.T) {
	s := New(nil)
	snap := model.HostSnapshot{
		HostID:      "host-a",
		FetchStatus: model.FetchOk,
		Memory:      model.MemorySample{UtilizationPct: 42},
	}

	s.ApplySnapshot("host-a", snap)

	got := s.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 host, got %d", len(got))
	}
	if got["host-a"].Memory.UtilizationPct != 42 {
		t.Errorf("expected utilization 42, got %v", got["host-a"].Memory.UtilizationPct)
	}
}

func TestMarkStalePreservesPriorSnapshot(t *testing.T) {
	s := New(nil)
	s.ApplySnapshot("host-a", model.HostSnapshot{
		HostID:      "host-a",
		FetchStatus: model.FetchOk,
		Memory:      model.MemorySample{UtilizationPct: 10},
	})

	s.MarkStale("host-a", "connection refused")

	got := s.Snapshot()["host-a"]
	if got.FetchStatus != model.FetchErrWithReason {
		t.Errorf("expected ErrWithReason, got %v", got.FetchStatus)
	}
	if got.Memory.UtilizationPct != 10 {
		t.Errorf("expected prior snapshot data retained, got %v", got.Memory.UtilizationPct)
	}
	if got.StatusError == "" {
		t.Error("expected a status error message")
	}
}

func TestHistoryCapsAtHistoryCapacity(t *testing.T) {
	s := New(nil)
	for i := 0; i < HistoryCapacity+20; i++ {
		s.ApplySnapshot("host-a", model.HostSnapshot{
			HostID: "host-a",
			Memory: model.MemorySample{UtilizationPct: float64(i)},
		})
	}

	pts := s.History("host-a", "memory:utilization")
	if len(pts) != HistoryCapacity {
		t.Fatalf("expected %d points, got %d", HistoryCapacity, len(pts))
	}
	// Oldest point kept should be the 21st value pushed (index 20).
	if pts[0] != 20 {
		t.Errorf("expected oldest retained value 20, got %v", pts[0])
	}
}

func TestConcurrentReadWriteDoesNotRace(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.ApplySnapshot("host-a", model.HostSnapshot{HostID: "host-a"})
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
}

func TestLockTimeoutDoesNotBlockForever(t *testing.T) {
	acquired := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	go func() {
		mu.Lock()
		close(acquired)
		<-release
		mu.Unlock()
	}()
	<-acquired
	defer close(release)

	start := time.Now()
	ok := tryLockTimeout(mu.TryLock, 50*time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("expected timeout to fail to acquire a held lock")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("tryLockTimeout took too long: %v", elapsed)
	}
}
