package replay

import (
	"context"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/log"
)

// CleanupManager periodically sweeps expired replay entries so storage
// growth stays bounded by the authorization-code lifetime
type CleanupManager struct {
	guard    Guard
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(guard Guard, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		guard:    guard,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("replay", "Starting replay guard cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan // Wait for cleanup loop to finish
	log.LogInfoWithFields("replay", "Replay guard cleanup stopped", nil)
}

// run is the main cleanup loop
func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.sweep(ctx)
		case <-cm.stopChan:
			// Final sweep on shutdown
			cm.sweep(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) sweep(ctx context.Context) {
	count, err := cm.guard.SweepExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("replay", "Failed to sweep expired replay entries", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogDebugWithFields("replay", "Swept expired replay entries", map[string]any{
			"count": count,
		})
	}
}
