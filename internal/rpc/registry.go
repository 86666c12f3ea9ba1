package rpc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrMethodNotFound is returned when a method has no registered procedure.
var ErrMethodNotFound = errors.New("method not found")

// Tags are the static capabilities a procedure declares when registered.
type Tags struct {
	// AsyncExecute marks the method for deferred execution.
	AsyncExecute bool   `json:"async_execute"`
	Description  string `json:"description,omitempty"`
}

// Option configures the tags of a registration.
type Option func(*Tags)

// AsyncExecute declares the async-execute capability.
func AsyncExecute() Option {
	return func(t *Tags) { t.AsyncExecute = true }
}

// WithDescription attaches a human readable summary to the method.
func WithDescription(desc string) Option {
	return func(t *Tags) { t.Description = desc }
}

// MethodInfo pairs a method name with its tags.
type MethodInfo struct {
	Name string `json:"name"`
	Tags Tags   `json:"tags"`
}

type registration struct {
	proc Procedure
	tags Tags
}

// Registry holds registered procedures and resolves which one serves a given
// method name.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]registration
}

// NewRegistry creates an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]registration),
	}
}

// Register adds a procedure under the given method name, replacing any
// previous registration.
func (r *Registry) Register(method string, p Procedure, opts ...Option) {
	var tags Tags
	for _, opt := range opts {
		opt(&tags)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = registration{proc: p, tags: tags}
}

// Resolve returns the procedure registered for method.
func (r *Registry) Resolve(method string) (Procedure, error) {
	reg, err := r.lookup(method)
	if err != nil {
		return nil, err
	}
	return reg.proc, nil
}

// IsAsync reports whether method was registered with the async-execute
// capability. Unknown methods return ErrMethodNotFound.
func (r *Registry) IsAsync(method string) (bool, error) {
	reg, err := r.lookup(method)
	if err != nil {
		return false, err
	}
	return reg.tags.AsyncExecute, nil
}

func (r *Registry) lookup(method string) (registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.methods[method]
	if !ok {
		return registration{}, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
	}
	return reg, nil
}

// List returns all registered methods sorted by name for a stable API
// response.
func (r *Registry) List() []MethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]MethodInfo, 0, len(r.methods))
	for name, reg := range r.methods {
		infos = append(infos, MethodInfo{Name: name, Tags: reg.tags})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
