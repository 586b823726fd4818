// Package descriptor loads the deployment descriptor that maps URL patterns
// to handler, filter and listener identities.
package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"webapp-server/internal/component"
	"webapp-server/internal/listener"
	"webapp-server/internal/protocol"
	"webapp-server/internal/router"
	"webapp-server/internal/web"
)

type Component struct {
	Name       string            `json:"name" yaml:"name" toml:"name"`
	Impl       string            `json:"impl" yaml:"impl" toml:"impl"`
	InitParams map[string]string `json:"init_params,omitempty" yaml:"init_params,omitempty" toml:"init_params,omitempty"`
}

type Route struct {
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`
	Handler string `json:"handler" yaml:"handler" toml:"handler"`
}

type FilterMapping struct {
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`
	Filter  string `json:"filter" yaml:"filter" toml:"filter"`
}

type Descriptor struct {
	DisplayName    string            `json:"display_name,omitempty" yaml:"display_name,omitempty" toml:"display_name,omitempty"`
	ContextParams  map[string]string `json:"context_params,omitempty" yaml:"context_params,omitempty" toml:"context_params,omitempty"`
	Handlers       []Component       `json:"handlers" yaml:"handlers" toml:"handlers"`
	Routes         []Route           `json:"routes" yaml:"routes" toml:"routes"`
	Filters        []Component       `json:"filters,omitempty" yaml:"filters,omitempty" toml:"filters,omitempty"`
	FilterMappings []FilterMapping   `json:"filter_mappings,omitempty" yaml:"filter_mappings,omitempty" toml:"filter_mappings,omitempty"`
	Listeners      []string          `json:"listeners,omitempty" yaml:"listeners,omitempty" toml:"listeners,omitempty"`
}

// ConfigError reports a descriptor that cannot be read or does not describe
// a consistent application.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("descriptor %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads a descriptor; the format follows the extension (.yaml, .yml,
// .toml, .json). Unknown keys are rejected.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	d, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return d, nil
}

func Parse(ext string, data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), d)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml: unknown keys %v", undecoded)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(d); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported descriptor format %q", ext)
	}
	return d, nil
}

// Target is what a descriptor is applied to.
type Target struct {
	Routes            *router.Table
	App               *web.AppContext
	Components        *component.Factories
	Listeners         *listener.Registry
	ListenerFactories *listener.Factories
	Logger            *zap.Logger
}

// Apply populates the target from d. Duplicate route patterns keep the last
// declaration. Any inconsistency is reported as a *ConfigError naming path.
func (d *Descriptor) Apply(path string, t Target) error {
	if err := d.apply(t); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}

func (d *Descriptor) apply(t Target) error {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if t.App != nil {
		for k, v := range d.ContextParams {
			t.App.SetInitParameter(k, v)
		}
	}

	var errs []error
	for _, h := range d.Handlers {
		if err := checkComponent("handler", h, t.Components); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.Routes.AddHandler(router.HandlerDescriptor{ID: h.Name, Impl: h.Impl, InitParams: h.InitParams}); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range d.Filters {
		if err := checkComponent("filter", f, t.Components); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.Routes.AddFilter(router.FilterDescriptor{ID: f.Name, Impl: f.Impl, InitParams: f.InitParams}); err != nil {
			errs = append(errs, err)
		}
	}

	seen := make(map[string]string, len(d.Routes))
	for _, r := range d.Routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			errs = append(errs, fmt.Errorf("route %q: pattern must start with /", r.Pattern))
			continue
		}
		if prev, ok := seen[r.Pattern]; ok {
			logger.Warn("duplicate route, last declaration wins",
				zap.String("pattern", r.Pattern),
				zap.String("previous", prev),
				zap.String("handler", r.Handler),
			)
		}
		seen[r.Pattern] = r.Handler
		if err := t.Routes.AddRoute(r.Pattern, r.Handler); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range d.FilterMappings {
		if err := t.Routes.AddFilterBinding(m.Pattern, m.Filter); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.Routes.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, name := range d.Listeners {
		if err := registerListener(name, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkComponent(kind string, c Component, factories *component.Factories) error {
	if c.Name == "" {
		return fmt.Errorf("%s with impl %q has no name", kind, c.Impl)
	}
	if factories == nil {
		return nil
	}
	if _, ok := factories.Get(c.Impl); !ok {
		return fmt.Errorf("%s %s: %w: %s", kind, c.Name, protocol.ErrFactoryNotFound, c.Impl)
	}
	return nil
}

func registerListener(name string, t Target) error {
	if t.ListenerFactories == nil || t.Listeners == nil {
		return fmt.Errorf("listener %s: no listener registry", name)
	}
	factory, ok := t.ListenerFactories.Get(name)
	if !ok {
		return fmt.Errorf("listener %s: %w", name, protocol.ErrFactoryNotFound)
	}
	l, err := factory()
	if err != nil {
		return fmt.Errorf("listener %s: %w", name, err)
	}
	n, err := t.Listeners.RegisterAll(l)
	if err != nil {
		return fmt.Errorf("listener %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("listener %s implements no listener interface", name)
	}
	return nil
}
