package job

import (
	"sync"
	"time"
)

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy     bool      `json:"healthy"`
	LastCheck   time.Time `json:"lastCheck"`
	LastSuccess time.Time `json:"lastSuccess,omitempty"`
	LastError   error     `json:"-"`
	Message     string    `json:"message"`
}

// Health tracks scheduler passes and publishers by component name.
type Health struct {
	mu         sync.RWMutex
	components map[string]*HealthStatus
	now        func() time.Time
}

func NewHealth() *Health {
	return &Health{
		components: make(map[string]*HealthStatus),
		now:        time.Now,
	}
}

func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	status := h.component(component)
	status.Healthy = true
	status.LastCheck = now
	status.LastSuccess = now
	status.LastError = nil
	status.Message = message
}

func (h *Health) SetUnhealthy(component string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.component(component)
	status.Healthy = false
	status.LastCheck = h.now()
	status.LastError = err
	status.Message = err.Error()
}

func (h *Health) component(name string) *HealthStatus {
	status, ok := h.components[name]
	if !ok {
		status = &HealthStatus{}
		h.components[name] = status
	}
	return status
}

// GetStatus returns a copy of a component's status, or nil if it was never reported.
func (h *Health) GetStatus(component string) *HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.components[component]; ok {
		cp := *status
		return &cp
	}
	return nil
}

func (h *Health) GetAllStatuses() map[string]*HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*HealthStatus, len(h.components))
	for name, status := range h.components {
		cp := *status
		result[name] = &cp
	}
	return result
}

func (h *Health) IsOverallHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, status := range h.components {
		if !status.Healthy {
			return false
		}
	}
	return true
}
