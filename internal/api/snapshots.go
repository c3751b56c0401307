package api

import (
	"sync"
	"time"

	"github.com/nerrad567/wolf-bridge/internal/device"
)

// Snapshots holds the latest catalog and status published by the runner.
// It satisfies wolf.SnapshotStore.
type Snapshots struct {
	mu         sync.RWMutex
	parameters []device.Parameter
	status     device.Status
	hasStatus  bool
	updatedAt  time.Time
}

// NewSnapshots creates an empty store.
func NewSnapshots() *Snapshots {
	return &Snapshots{}
}

// SetParameters replaces the catalog.
func (s *Snapshots) SetParameters(parameters []device.Parameter) {
	cp := make([]device.Parameter, len(parameters))
	copy(cp, parameters)

	s.mu.Lock()
	s.parameters = cp
	s.mu.Unlock()
}

// SetStatus replaces the latest status.
func (s *Snapshots) SetStatus(status device.Status) {
	s.mu.Lock()
	s.status = status
	s.hasStatus = true
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Parameters returns the catalog.
func (s *Snapshots) Parameters() []device.Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parameters
}

// Status returns the latest status and false if none was set yet.
func (s *Snapshots) Status() (device.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.hasStatus
}

// UpdatedAt returns when the status was last set.
func (s *Snapshots) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
