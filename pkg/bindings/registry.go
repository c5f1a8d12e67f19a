// pkg/bindings/registry.go - in-memory registry used off-Windows and in tests.

package bindings

import (
	"strings"
	"sync"
)

// MemRegistry is a Registry backed by a map. Key paths are case-insensitive,
// matching Windows registry semantics.
type MemRegistry struct {
	mu   sync.Mutex
	keys map[string]map[string]string
}

// NewMemRegistry returns an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{keys: make(map[string]map[string]string)}
}

func regNorm(s string) string { return strings.ToLower(s) }

func (r *MemRegistry) SetValue(key, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := regNorm(key)
	if r.keys[k] == nil {
		r.keys[k] = make(map[string]string)
	}
	r.keys[k][regNorm(name)] = value
	return nil
}

func (r *MemRegistry) GetValue(key, name string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vals, ok := r.keys[regNorm(key)]
	if !ok {
		return "", false, nil
	}
	v, ok := vals[regNorm(name)]
	return v, ok, nil
}

func (r *MemRegistry) DeleteValue(key, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vals, ok := r.keys[regNorm(key)]; ok {
		delete(vals, regNorm(name))
	}
	return nil
}

func (r *MemRegistry) DeleteKey(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, regNorm(key))
	return nil
}

func (r *MemRegistry) KeyExists(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[regNorm(key)]
	return ok, nil
}

func (r *MemRegistry) KeyValues(key string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vals, ok := r.keys[regNorm(key)]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(vals))
	for k, v := range vals {
		out[k] = v
	}
	return out, nil
}

func (r *MemRegistry) CreateKey(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := regNorm(key)
	if r.keys[k] == nil {
		r.keys[k] = make(map[string]string)
	}
	return nil
}
