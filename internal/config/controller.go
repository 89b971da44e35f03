package config

import "sync"

// Controller provides thread-safe read access to the effective configuration
// plus an explicit reload. The coordinator holds one controller for the life
// of the process.
type Controller struct {
	mu  sync.RWMutex
	cfg Config
}

// NewController loads the configuration once and wraps it.
func NewController() *Controller {
	return &Controller{cfg: Load()}
}

// Current returns a snapshot of the configuration. The returned value is a
// copy; callers can hold it without locking.
func (c *Controller) Current() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Reload re-reads file and environment. It never fails; the worst outcome
// is the defaults.
func (c *Controller) Reload() {
	fresh := Load()
	c.mu.Lock()
	c.cfg = fresh
	c.mu.Unlock()
}
