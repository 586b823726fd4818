package web

import (
	"maps"
	"slices"
	"sync"
)

// Config is handed to a component's Init: its declared name, init
// parameters and the application context.
type Config struct {
	name   string
	params map[string]string
	app    *AppContext
}

func NewConfig(name string, params map[string]string, app *AppContext) Config {
	return Config{name: name, params: maps.Clone(params), app: app}
}

func (c Config) Name() string { return c.name }

func (c Config) InitParameter(name string) string { return c.params[name] }

// InitParameterOr returns def when the parameter is absent or empty.
func (c Config) InitParameterOr(name, def string) string {
	if v := c.params[name]; v != "" {
		return v
	}
	return def
}

func (c Config) InitParameterNames() []string {
	return slices.Sorted(maps.Keys(c.params))
}

func (c Config) Context() *AppContext { return c.app }

// AppContext is shared by every component of the application. Init
// parameters are written during start-up only; attributes may change at any time.
type AppContext struct {
	name   string
	params map[string]string

	mu    sync.RWMutex
	attrs map[string]any
}

func NewAppContext(name string) *AppContext {
	return &AppContext{
		name:   name,
		params: make(map[string]string),
		attrs:  make(map[string]any),
	}
}

func (a *AppContext) Name() string { return a.name }

func (a *AppContext) SetInitParameter(name, value string) {
	a.params[name] = value
}

func (a *AppContext) InitParameter(name string) string { return a.params[name] }

func (a *AppContext) InitParameterNames() []string {
	return slices.Sorted(maps.Keys(a.params))
}

func (a *AppContext) Attribute(name string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.attrs[name]
	return v, ok
}

func (a *AppContext) SetAttribute(name string, value any) {
	a.mu.Lock()
	a.attrs[name] = value
	a.mu.Unlock()
}

func (a *AppContext) RemoveAttribute(name string) {
	a.mu.Lock()
	delete(a.attrs, name)
	a.mu.Unlock()
}
