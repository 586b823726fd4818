// internal/router/router.go
package router

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"webapp-server/internal/protocol"
)

type Route struct {
	Pattern   string
	HandlerID string
}

type HandlerDescriptor struct {
	ID         string
	Impl       string
	InitParams map[string]string
}

type FilterDescriptor struct {
	ID         string
	Impl       string
	InitParams map[string]string
}

// Table maps exact URLs to handlers and ordered filter lists. It is written
// during start-up only; Seal freezes it before the first dispatch, after which
// reads need no locking.
type Table struct {
	routes   map[string]string
	bindings map[string][]string
	handlers map[string]HandlerDescriptor
	filters  map[string]FilterDescriptor

	sealed atomic.Bool
}

func NewTable() *Table {
	return &Table{
		routes:   make(map[string]string),
		bindings: make(map[string][]string),
		handlers: make(map[string]HandlerDescriptor),
		filters:  make(map[string]FilterDescriptor),
	}
}

// AddRoute binds pattern to handlerID. A second call for the same pattern
// silently replaces the first.
func (t *Table) AddRoute(pattern, handlerID string) error {
	if t.sealed.Load() {
		return protocol.ErrSealed
	}
	t.routes[pattern] = handlerID
	return nil
}

// AddFilterBinding appends filterID to the filters run for pattern.
func (t *Table) AddFilterBinding(pattern, filterID string) error {
	if t.sealed.Load() {
		return protocol.ErrSealed
	}
	t.bindings[pattern] = append(t.bindings[pattern], filterID)
	return nil
}

func (t *Table) AddHandler(d HandlerDescriptor) error {
	if t.sealed.Load() {
		return protocol.ErrSealed
	}
	t.handlers[d.ID] = d
	return nil
}

func (t *Table) AddFilter(d FilterDescriptor) error {
	if t.sealed.Load() {
		return protocol.ErrSealed
	}
	t.filters[d.ID] = d
	return nil
}

func (t *Table) Seal() { t.sealed.Store(true) }

func (t *Table) Sealed() bool { return t.sealed.Load() }

func (t *Table) ResolveHandler(url string) (string, bool) {
	id, ok := t.routes[url]
	return id, ok
}

// ResolveFilters returns the filter ids bound to url in registration order.
func (t *Table) ResolveFilters(url string) []string {
	return slices.Clone(t.bindings[url])
}

func (t *Table) Handler(id string) (HandlerDescriptor, bool) {
	d, ok := t.handlers[id]
	return d, ok
}

func (t *Table) Filter(id string) (FilterDescriptor, bool) {
	d, ok := t.filters[id]
	return d, ok
}

func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, p := range slices.Sorted(maps.Keys(t.routes)) {
		out = append(out, Route{Pattern: p, HandlerID: t.routes[p]})
	}
	return out
}

// Validate reports every route or binding that names an undeclared component.
func (t *Table) Validate() error {
	var errs []error
	for _, r := range t.Routes() {
		if _, ok := t.handlers[r.HandlerID]; !ok {
			errs = append(errs, fmt.Errorf("route %s: %w: %s", r.Pattern, protocol.ErrHandlerNotFound, r.HandlerID))
		}
	}
	for _, p := range slices.Sorted(maps.Keys(t.bindings)) {
		for _, id := range t.bindings[p] {
			if _, ok := t.filters[id]; !ok {
				errs = append(errs, fmt.Errorf("filter binding %s: %w: %s", p, protocol.ErrFilterNotFound, id))
			}
		}
	}
	return errors.Join(errs...)
}
