package learning

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"vlearn/internal/config"
	"vlearn/internal/logging"
)

var (
	defaultMu   sync.RWMutex
	defaultOnce sync.Once
	defaultCoor *Coordinator
)

// Default returns the process-wide coordinator, creating it on first use
// from the environment configuration. Every caller in the process shares
// the same instance.
func Default() *Coordinator {
	defaultOnce.Do(func() {
		cfg := config.NewController().Current()
		logging.Initialize(cfg.StoragePath)
		c := NewCoordinator(cfg)

		defaultMu.Lock()
		if defaultCoor == nil {
			defaultCoor = c
		} else {
			// SetDefault won the race; discard the fresh instance.
			c.Shutdown()
		}
		defaultMu.Unlock()
	})

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultCoor
}

// SetDefault replaces the process-wide coordinator. Hosts use it to inject
// a coordinator built from their own configuration; tests use it to swap in
// an isolated instance. The previous coordinator, if any, keeps running and
// remains the caller's to shut down.
func SetDefault(c *Coordinator) *Coordinator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultCoor
	defaultCoor = c
	return prev
}

var exitHookOnce sync.Once

// InstallExitHook registers a best-effort shutdown of the process-wide
// coordinator on SIGINT/SIGTERM. The signal is re-raised after shutdown so
// the host's own handling still runs.
func InstallExitHook() {
	exitHookOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-ch
			logging.Learning("exit signal %v, shutting down learning", sig)
			if c := Default(); c != nil {
				c.Shutdown()
			}
			logging.CloseAll()
			signal.Stop(ch)
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				_ = p.Signal(sig)
			}
		}()
	})
}
