// internal/listener/registry.go
package listener

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"webapp-server/internal/handler"
	"webapp-server/internal/protocol"
)

// Factory constructs a listener instance once at start-up.
type Factory func() (any, error)

type Factories = handler.Registry[Factory]

func NewFactories() *Factories {
	return handler.NewRegistry[Factory]()
}

// Registry delivers events synchronously in registration order. It is
// written during start-up and sealed before the first dispatch.
type Registry struct {
	listeners map[Kind][]Listener
	logger    *zap.Logger
	sealed    atomic.Bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		listeners: make(map[Kind][]Listener),
		logger:    logger,
	}
}

func (r *Registry) Register(kind Kind, l Listener) error {
	if r.sealed.Load() {
		return protocol.ErrSealed
	}
	r.listeners[kind] = append(r.listeners[kind], l)
	return nil
}

// RegisterAll registers l for every kind whose listener interface it
// implements and reports how many interfaces matched.
func (r *Registry) RegisterAll(l any) (int, error) {
	matched := 0
	if rl, ok := l.(RequestListener); ok {
		a := requestAdapter{rl}
		if err := r.registerPair(RequestInitialized, RequestDestroyed, a); err != nil {
			return matched, err
		}
		matched++
	}
	if sl, ok := l.(SessionListener); ok {
		a := sessionAdapter{sl}
		if err := r.registerPair(SessionCreated, SessionDestroyed, a); err != nil {
			return matched, err
		}
		matched++
	}
	if cl, ok := l.(ContextListener); ok {
		a := contextAdapter{cl}
		if err := r.registerPair(ContextInitialized, ContextDestroyed, a); err != nil {
			return matched, err
		}
		matched++
	}
	return matched, nil
}

func (r *Registry) registerPair(a, b Kind, l Listener) error {
	if err := r.Register(a, l); err != nil {
		return err
	}
	return r.Register(b, l)
}

func (r *Registry) Seal() { r.sealed.Store(true) }

func (r *Registry) Len(kind Kind) int { return len(r.listeners[kind]) }

// Notify delivers ev to every listener of kind. A failing or panicking
// listener is logged and skipped; the joined failures are returned.
func (r *Registry) Notify(kind Kind, ev Event) error {
	ev.Kind = kind
	var errs []error
	for i, l := range r.listeners[kind] {
		if err := r.deliver(l, ev); err != nil {
			fields := []zap.Field{
				zap.String("event", kind.String()),
				zap.Int("listener", i),
				zap.Error(err),
			}
			if ev.Request != nil {
				fields = append(fields, zap.String("request_id", ev.Request.ID))
			}
			r.logger.Warn("listener failed", fields...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) deliver(l Listener, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return l.Notify(ev)
}
