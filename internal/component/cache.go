// internal/component/cache.go
package component

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"webapp-server/internal/handler"
	"webapp-server/internal/protocol"
	"webapp-server/internal/web"
)

// Factory is the default construction path of a component implementation.
type Factory func() web.Component

type Factories = handler.Registry[Factory]

func NewFactories() *Factories {
	return handler.NewRegistry[Factory]()
}

// InitError reports a failed construction or Init; the instance is not cached.
type InitError struct {
	Impl string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize component %s: %v", e.Impl, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Cache holds one live, initialised instance per implementation name for the
// lifetime of the container.
type Cache struct {
	factories *Factories
	logger    *zap.Logger

	mu        sync.RWMutex
	instances map[string]web.Component
	order     []string

	group singleflight.Group
}

func NewCache(factories *Factories, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		factories: factories,
		logger:    logger,
		instances: make(map[string]web.Component),
	}
}

// GetOrCreate returns the cached instance of impl, constructing and
// initialising it with cfg on first use. Concurrent first callers share one
// construction; Init never runs twice for a cached instance.
func (c *Cache) GetOrCreate(impl string, cfg web.Config) (web.Component, error) {
	if inst, ok := c.lookup(impl); ok {
		return inst, nil
	}

	v, err, _ := c.group.Do(impl, func() (any, error) {
		if inst, ok := c.lookup(impl); ok {
			return inst, nil
		}
		inst, err := c.create(impl, cfg)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.instances[impl] = inst
		c.order = append(c.order, impl)
		c.mu.Unlock()

		c.logger.Info("component initialized",
			zap.String("impl", impl),
			zap.String("name", cfg.Name()),
		)
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(web.Component), nil
}

func (c *Cache) Handler(impl string, cfg web.Config) (web.Handler, error) {
	inst, err := c.GetOrCreate(impl, cfg)
	if err != nil {
		return nil, err
	}
	h, ok := inst.(web.Handler)
	if !ok {
		return nil, &InitError{Impl: impl, Err: protocol.ErrNotHandler}
	}
	return h, nil
}

func (c *Cache) Filter(impl string, cfg web.Config) (web.Filter, error) {
	inst, err := c.GetOrCreate(impl, cfg)
	if err != nil {
		return nil, err
	}
	f, ok := inst.(web.Filter)
	if !ok {
		return nil, &InitError{Impl: impl, Err: protocol.ErrNotFilter}
	}
	return f, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

// DestroyAll destroys instances in reverse creation order and empties the cache.
func (c *Cache) DestroyAll() {
	c.mu.Lock()
	instances, order := c.instances, c.order
	c.instances = make(map[string]web.Component)
	c.order = nil
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		impl := order[i]
		d, ok := instances[impl].(web.Destroyer)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("component destroy panic",
						zap.String("impl", impl),
						zap.Any("panic", r),
					)
				}
			}()
			d.Destroy()
		}()
	}
}

func (c *Cache) lookup(impl string) (web.Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[impl]
	return inst, ok
}

func (c *Cache) create(impl string, cfg web.Config) (inst web.Component, err error) {
	factory, ok := c.factories.Get(impl)
	if !ok {
		return nil, &InitError{Impl: impl, Err: protocol.ErrFactoryNotFound}
	}

	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = &InitError{Impl: impl, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	inst = factory()
	if inst == nil {
		return nil, &InitError{Impl: impl, Err: fmt.Errorf("factory returned nil")}
	}
	if err := inst.Init(cfg); err != nil {
		return nil, &InitError{Impl: impl, Err: err}
	}
	return inst, nil
}
