package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the outcome of one archive health check
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// NewHealth creates a health record stamped with the current time
func NewHealth(status, message string, err error) Health {
	h := Health{LastCheck: time.Now(), Status: status, Message: message}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// HealthChecker is implemented by archives that can test their connection
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
}

// HealthManager keeps the latest health of each archive in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{health: make(map[string]Health)}
}

// UpdateHealth records the health of an archive backend
func (hm *HealthManager) UpdateHealth(backend string, h Health) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[backend] = h
}

// GetHealth returns the last recorded health of a backend
func (hm *HealthManager) GetHealth(backend string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[backend]
	return h, ok
}

// GetAllHealth returns a copy of every recorded health
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		out[k] = v
	}
	return out
}

// IsHealthy reports whether backend was healthy at a check no older than
// maxAge
func (hm *HealthManager) IsHealthy(backend string, maxAge time.Duration) bool {
	h, ok := hm.GetHealth(backend)
	if !ok || time.Since(h.LastCheck) > maxAge {
		return false
	}
	return h.Status == StatusHealthy
}

// StartHealthMonitor checks the archive immediately and then every
// interval until ctx ends
func StartHealthMonitor(ctx context.Context, wg *sync.WaitGroup, hm *HealthManager, backend string, checker HealthChecker, interval time.Duration, logger *zap.SugaredLogger) {
	update := func() {
		h := checker.CheckHealth(ctx)
		hm.UpdateHealth(backend, h)
		if h.Status != StatusHealthy {
			logger.Warnf("%s archive unhealthy: %s (%s)", backend, h.Message, h.Error)
		} else {
			logger.Debugf("Updated %s health status: %s", backend, h.Status)
		}
	}
	update()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", backend)
				return
			}
		}
	}()
}
