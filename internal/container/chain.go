// internal/container/chain.go
package container

import (
	"fmt"

	"webapp-server/internal/protocol"
	"webapp-server/internal/web"
)

type boundFilter struct {
	id     string
	filter web.Filter
}

// Chain threads one request through the filters bound to a URL and ends in
// the handler, which is resolved only if every filter forwards.
type Chain struct {
	c         *Container
	handlerID string
	filters   []boundFilter

	pos     int
	handled bool
}

// BuildChain resolves the filters bound to url, in registration order.
func (c *Container) BuildChain(url string) (*Chain, error) {
	handlerID, ok := c.routes.ResolveHandler(url)
	if !ok {
		return nil, fmt.Errorf("%w: no route for %s", protocol.ErrHandlerNotFound, url)
	}

	ids := c.routes.ResolveFilters(url)
	filters := make([]boundFilter, 0, len(ids))
	for _, id := range ids {
		desc, ok := c.routes.Filter(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", protocol.ErrFilterNotFound, id)
		}
		f, err := c.cache.Filter(desc.Impl, web.NewConfig(desc.ID, desc.InitParams, c.app))
		if err != nil {
			return nil, err
		}
		filters = append(filters, boundFilter{id: id, filter: f})
	}
	return &Chain{c: c, handlerID: handlerID, filters: filters}, nil
}

// Proceed runs the next filter, or the handler once all filters forwarded.
// The outcome is ShortCircuited when the handler was never reached.
func (ch *Chain) Proceed(req *web.Request, res web.Response) (web.Outcome, error) {
	if ch.pos < len(ch.filters) {
		bf := ch.filters[ch.pos]
		ch.pos++
		err := callFilter(bf, req, res, ch)
		return ch.outcome(), err
	}
	if ch.handled {
		return web.Completed, nil
	}
	ch.handled = true
	return web.Completed, ch.c.invoke(req, res, ch.handlerID)
}

func (ch *Chain) outcome() web.Outcome {
	if ch.handled {
		return web.Completed
	}
	return web.ShortCircuited
}

func (ch *Chain) Handled() bool { return ch.handled }

func callFilter(bf boundFilter, req *web.Request, res web.Response, next web.Chain) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Component: bf.id, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return wrapInvocation(bf.id, bf.filter.DoFilter(req, res, next))
}
