package pagestore

import (
	"context"
	"sync"
	"time"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/utils"
)

// CleanerConfig configures a Cleaner.
type CleanerConfig struct {
	// TTL is the idle age after which a page is removed. Zero disables
	// age-based removal.
	TTL      time.Duration
	Interval time.Duration
}

// Cleaner periodically removes idle pages from every session in a Registry.
type Cleaner struct {
	registry *Registry
	config   CleanerConfig
	logger   *utils.StructuredLogger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCleaner creates a cleaner for registry.
func NewCleaner(registry *Registry, config CleanerConfig, logger *utils.StructuredLogger) *Cleaner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Cleaner{
		registry: registry,
		config:   config,
		logger:   logger.WithComponent("cleaner"),
		now:      time.Now,
	}
}

// Start launches the sweep loop. It runs until Stop is called or ctx ends;
// either way the cleaner can be started again.
func (c *Cleaner) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "cleaner already started").
			WithComponent("cleaner")
	}
	c.started = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.loop(ctx, c.stopCh)

	c.logger.Info("cleaner started", map[string]interface{}{
		"ttl":      c.config.TTL.String(),
		"interval": c.config.Interval.String(),
	})
	return nil
}

// Stop halts the sweep loop and waits for it to exit.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("cleaner stopped")
}

// Sweep removes pages idle since before now-TTL from every session and
// returns the number removed.
func (c *Cleaner) Sweep(now time.Time) int {
	if c.config.TTL <= 0 {
		return 0
	}
	cutoff := now.Add(-c.config.TTL)

	removed := 0
	for _, store := range c.registry.Stores() {
		removed += len(store.Expire(cutoff))
	}
	if removed > 0 {
		c.logger.Debug("sweep removed idle pages", map[string]interface{}{"pages": removed})
	}
	return removed
}

func (c *Cleaner) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(c.now())
		case <-stopCh:
			return
		case <-ctx.Done():
			c.mu.Lock()
			if c.stopCh == stopCh {
				c.started = false
			}
			c.mu.Unlock()
			return
		}
	}
}
