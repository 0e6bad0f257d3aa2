package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// HandlerRef points at an exported function of a source module, "module.export".
type HandlerRef struct {
	Module string
	Export string
}

// ParseHandlerRef splits ref at its last dot.
func ParseHandlerRef(ref string) (HandlerRef, error) {
	ref = strings.TrimSpace(ref)
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return HandlerRef{}, fmt.Errorf("handler %q must look like module.export", ref)
	}
	return HandlerRef{Module: ref[:i], Export: ref[i+1:]}, nil
}

func (h HandlerRef) String() string {
	return h.Module + "." + h.Export
}

// Context is the invocation context given to local handlers. Local runs pass an
// empty one.
type Context struct{}

// Handler is a locally runnable function.
type Handler func(ctx context.Context, event json.RawMessage, lc *Context) (any, error)

// Resolver finds the Handler behind a reference. Implementations return an error
// wrapping ErrHandlerNotFound when they do not know ref.
type Resolver interface {
	Resolve(ref HandlerRef) (Handler, error)
}

// Registry holds in-process handlers keyed by "module.export".
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under ref, replacing any earlier registration.
func (r *Registry) Register(ref string, h Handler) error {
	parsed, err := ParseHandlerRef(ref)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.New("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[parsed.String()] = h
	return nil
}

// Resolve implements Resolver.
func (r *Registry) Resolve(ref HandlerRef) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ref.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, ref)
	}
	return h, nil
}

// Chain asks each resolver in turn, moving on only when a resolver does not know
// the handler.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ref HandlerRef) (Handler, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		h, err := r.Resolve(ref)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrHandlerNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, ref)
}

// Local runs handlers without the remote platform.
type Local struct {
	resolver Resolver
}

// NewLocal returns a Local runner using resolver.
func NewLocal(resolver Resolver) *Local {
	return &Local{resolver: resolver}
}

// Run resolves handler, calls it with payload and an empty Context and returns its
// result as JSON. An error reported by the handler is returned as is; a panic is
// converted into an error.
func (l *Local) Run(ctx context.Context, handler string, payload json.RawMessage) (out json.RawMessage, err error) {
	if l == nil || l.resolver == nil {
		return nil, errors.New("no handler resolver configured")
	}
	ref, err := ParseHandlerRef(handler)
	if err != nil {
		return nil, err
	}
	fn, err := l.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		payload = emptyEvent
	}

	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("handler %s panicked: %v", ref, p)
		}
	}()

	result, err := fn(ctx, payload, &Context{})
	if err != nil {
		return nil, err
	}
	return encodeResult(result)
}

func encodeResult(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case json.RawMessage:
		if json.Valid(t) {
			return t, nil
		}
	case []byte:
		if json.Valid(t) {
			return json.RawMessage(t), nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode handler result: %w", err)
	}
	return data, nil
}
