package bridge

import (
	"sync"
	"time"
)

// InstanceState is the lifecycle phase of one bridge instance.
type InstanceState string

const (
	StateStarting InstanceState = "starting"
	StateRunning  InstanceState = "running"
	StateFailed   InstanceState = "failed"
	StateStopped  InstanceState = "stopped"
)

// InstanceStatus is the reportable state of one instance.
type InstanceStatus struct {
	State     InstanceState `json:"state"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusRegistry tracks instance lifecycle for the operational endpoints.
// Instances update it from their own goroutines.
type StatusRegistry struct {
	mu        sync.RWMutex
	instances map[string]InstanceStatus
}

// NewStatusRegistry returns an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{instances: make(map[string]InstanceStatus)}
}

// Set records a state transition for the named instance.
func (r *StatusRegistry) Set(name string, state InstanceState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.instances[name]
	if st.StartedAt.IsZero() {
		st.StartedAt = time.Now()
	}
	st.State = state
	st.UpdatedAt = time.Now()
	st.Error = ""
	if err != nil {
		st.Error = err.Error()
	}
	r.instances[name] = st
}

// Snapshot returns a copy of all instance statuses.
func (r *StatusRegistry) Snapshot() map[string]InstanceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]InstanceStatus, len(r.instances))
	for name, st := range r.instances {
		out[name] = st
	}
	return out
}

// AnyRunning reports whether at least one instance is in the running state.
func (r *StatusRegistry) AnyRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.instances {
		if st.State == StateRunning {
			return true
		}
	}
	return false
}
