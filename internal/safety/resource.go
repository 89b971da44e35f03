// Package safety contains the leaf primitives that gate learning work:
// resource and storage monitors plus the per-operation circuit breaker.
// Every check fails closed - an internal error means "not safe" rather than
// an error surfaced to the caller.
package safety

import (
	"runtime"
	"sync"
	"time"

	"vlearn/internal/logging"
)

// resourceCheckInterval bounds how often the monitor re-samples; between
// samples the cached verdict is returned so the submit path stays cheap.
const resourceCheckInterval = 2 * time.Second

// sampler reports CPU utilization in percent. A negative percentage means
// "unknown" (no baseline yet, or an unsupported platform) and is distinct
// from an error.
type sampler interface {
	Sample() (float64, error)
}

// ResourceMonitor answers one question: is it currently safe, resource-wise,
// to do learning work?
type ResourceMonitor struct {
	maxMemoryMB   int
	maxCPUPercent int

	mu          sync.Mutex
	lastCheck   time.Time
	lastVerdict bool
	cpu         sampler
}

// NewResourceMonitor creates a monitor with the configured ceilings.
func NewResourceMonitor(maxMemoryMB, maxCPUPercent int) *ResourceMonitor {
	return &ResourceMonitor{
		maxMemoryMB:   maxMemoryMB,
		maxCPUPercent: maxCPUPercent,
		lastVerdict:   true,
		cpu:           &cpuSampler{},
	}
}

// CanLearn reports whether process memory and system CPU are under their
// ceilings. Any internal error is treated as "not available".
func (m *ResourceMonitor) CanLearn() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategorySafety).Error("resource check panicked: %v", r)
			ok = false
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < resourceCheckInterval {
		return m.lastVerdict
	}
	m.lastCheck = time.Now()
	m.lastVerdict = m.check()
	return m.lastVerdict
}

func (m *ResourceMonitor) check() bool {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	heapMB := int(ms.HeapAlloc / (1024 * 1024))
	if m.maxMemoryMB > 0 && heapMB >= m.maxMemoryMB {
		logging.SafetyDebug("memory ceiling reached: heap=%dMB limit=%dMB", heapMB, m.maxMemoryMB)
		return false
	}

	// CPU sampling is platform-specific; a sampler that cannot answer yet
	// returns a negative percentage and the check passes on memory alone.
	// A sampling error is different: resources are "not available" then.
	pct, err := m.cpu.Sample()
	if err != nil {
		logging.SafetyDebug("cpu sample failed: %v", err)
		return false
	}
	if pct >= 0 && m.maxCPUPercent > 0 && int(pct) >= m.maxCPUPercent {
		logging.SafetyDebug("cpu ceiling reached: %.1f%% limit=%d%%", pct, m.maxCPUPercent)
		return false
	}
	return true
}
