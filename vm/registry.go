package vm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qnet-chain/qnetd/core"
)

// Handler is the function signature every transaction module must implement.
type Handler func(ctx *Context, payload json.RawMessage) error

// Registry maps TxKinds to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxKind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxKind]Handler)}
}

// Register associates kind with h. Panics on duplicate registration.
func (r *Registry) Register(kind core.TxKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxKind %q", kind))
	}
	r.handlers[kind] = h
}

// Execute dispatches payload to the handler registered for kind.
func (r *Registry) Execute(kind core.TxKind, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("vm: no handler registered for TxKind %q", kind)
	}
	return h(ctx, payload)
}

// globalRegistry is the package-level singleton that modules register into.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
// Module init() functions call this to self-register.
func Register(kind core.TxKind, h Handler) {
	globalRegistry.Register(kind, h)
}
