package yolobridge

import (
	"sync"
)

// InstanceManager is a registry of the multi instance Predictors
// currently alive, keyed by their opaque instance ID. Safe for
// concurrent use.
type InstanceManager struct {
	mu        sync.Mutex
	instances map[string]*Predictor
}

// Instances is the process wide registry multi instance Predictors
// register with on construction and leave on Dispose. The default
// single instance Predictor is never placed here.
var Instances = NewInstanceManager()

// NewInstanceManager creates an empty registry
func NewInstanceManager() *InstanceManager {
	return &InstanceManager{
		instances: make(map[string]*Predictor),
	}
}

// Register inserts or replaces the mapping for id
func (m *InstanceManager) Register(id string, p *Predictor) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[id] = p
}

// Unregister removes the mapping for id. Removing an absent id is not
// an error
func (m *InstanceManager) Unregister(id string) {

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.instances, id)
}

// Get returns the Predictor registered under id
func (m *InstanceManager) Get(id string) (*Predictor, bool) {

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.instances[id]
	return p, ok
}

// Has reports whether id is registered
func (m *InstanceManager) Has(id string) bool {

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.instances[id]
	return ok
}

// ActiveIDs returns a snapshot of all registered instance IDs
func (m *InstanceManager) ActiveIDs() []string {

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.instances))

	for id := range m.instances {
		ids = append(ids, id)
	}

	return ids
}

// Count returns the number of registered instances
func (m *InstanceManager) Count() int {

	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.instances)
}
