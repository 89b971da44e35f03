package safety

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFailureManager_OpensAfterThreshold(t *testing.T) {
	fm := NewFailureManager(3, time.Minute)

	for i := 0; i < 3; i++ {
		fm.RecordFailure("learn")
		if !fm.IsOperationSafe("learn") {
			t.Fatalf("circuit opened too early at failure %d", i+1)
		}
	}

	fm.RecordFailure("learn") // fourth failure exceeds threshold
	if fm.IsOperationSafe("learn") {
		t.Error("circuit should be open after exceeding threshold")
	}

	// Other operations keep their own state.
	if !fm.IsOperationSafe("insights") {
		t.Error("unrelated operation should be safe")
	}
}

func TestFailureManager_CooldownResets(t *testing.T) {
	fm := NewFailureManager(2, 10*time.Second)
	base := time.Unix(1000, 0)
	fm.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		fm.RecordFailure("learn")
	}
	if fm.IsOperationSafe("learn") {
		t.Fatal("circuit should be open")
	}

	// Not yet cooled down.
	fm.now = func() time.Time { return base.Add(9 * time.Second) }
	if fm.IsOperationSafe("learn") {
		t.Error("circuit should still be open before cooldown")
	}

	// Cooldown elapsed: breaker resets and the counter clears.
	fm.now = func() time.Time { return base.Add(11 * time.Second) }
	if !fm.IsOperationSafe("learn") {
		t.Error("circuit should reset after cooldown")
	}
	if got := fm.ErrorCount("learn"); got != 0 {
		t.Errorf("error count after reset = %d, want 0", got)
	}
}

func TestFailureManager_SuccessClearsClosedCounter(t *testing.T) {
	fm := NewFailureManager(3, time.Minute)
	fm.RecordFailure("learn")
	fm.RecordFailure("learn")
	fm.RecordSuccess("learn")
	if got := fm.ErrorCount("learn"); got != 0 {
		t.Errorf("error count = %d, want 0 after success", got)
	}
}

func TestFailureManager_ConcurrentAccess(t *testing.T) {
	fm := NewFailureManager(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fm.RecordFailure("op")
				fm.IsOperationSafe("op")
				fm.RecordSuccess("other")
			}
		}()
	}
	wg.Wait()
}

func TestResourceMonitor_CanLearnDefault(t *testing.T) {
	m := NewResourceMonitor(1<<20, 100) // ceilings far above any test process
	if !m.CanLearn() {
		t.Error("expected learning to be allowed under generous ceilings")
	}
	// Second call inside the cache interval takes the cached path.
	if !m.CanLearn() {
		t.Error("cached verdict should match")
	}
}

func TestResourceMonitor_DisabledCeilings(t *testing.T) {
	m := NewResourceMonitor(-1, -1)
	if !m.CanLearn() {
		t.Error("disabled ceilings should always pass")
	}
}

type stuckSampler struct {
	pct float64
	err error
}

func (s stuckSampler) Sample() (float64, error) { return s.pct, s.err }

func TestResourceMonitor_SampleErrorFailsClosed(t *testing.T) {
	m := NewResourceMonitor(1<<20, 100)
	m.cpu = stuckSampler{pct: -1, err: errors.New("proc stat unreadable")}
	if m.CanLearn() {
		t.Error("a CPU sampling error must mean resources are not available")
	}
}

func TestResourceMonitor_UnknownCPUPassesOnMemory(t *testing.T) {
	m := NewResourceMonitor(1<<20, 100)
	m.cpu = stuckSampler{pct: -1} // no baseline yet, not an error
	if !m.CanLearn() {
		t.Error("an unknown CPU reading should pass on memory alone")
	}
}

func TestResourceMonitor_CPUCeilingExceeded(t *testing.T) {
	m := NewResourceMonitor(1<<20, 50)
	m.cpu = stuckSampler{pct: 90}
	if m.CanLearn() {
		t.Error("CPU above its ceiling must block learning")
	}
}

func TestStorageMonitor_MissingDirCountsEmpty(t *testing.T) {
	m := NewStorageMonitor("/nonexistent/vlearn-test-dir", 10)
	if !m.WithinLimit() {
		t.Error("missing storage dir should count as empty, not unavailable")
	}
}

func TestStorageMonitor_CeilingExceeded(t *testing.T) {
	dir := t.TempDir()
	m := NewStorageMonitor(dir, 0) // 0 = no ceiling configured
	if !m.WithinLimit() {
		t.Error("no ceiling should always pass")
	}
}
