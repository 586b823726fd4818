// internal/container/container.go
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"webapp-server/internal/component"
	"webapp-server/internal/listener"
	"webapp-server/internal/protocol"
	"webapp-server/internal/router"
	"webapp-server/internal/session"
	"webapp-server/internal/web"
)

type Options struct {
	// AppRoot is searched for static resources before ResourceRoot.
	AppRoot string
	// ResourceRoot holds container resources and the <status>.html error pages.
	ResourceRoot string
	Logger       *zap.Logger
}

// Container resolves each request to a handler, a filter chain or a static
// resource. One Container is built at start-up and shared by every
// connection goroutine.
type Container struct {
	routes    *router.Table
	cache     *component.Cache
	listeners *listener.Registry
	sessions  session.Store
	app       *web.AppContext

	appRoot      string
	resourceRoot string
	logger       *zap.Logger

	started  atomic.Bool
	inflight atomic.Int64
}

func New(
	routes *router.Table,
	cache *component.Cache,
	listeners *listener.Registry,
	sessions session.Store,
	app *web.AppContext,
	opts Options,
) *Container {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if app == nil {
		app = web.NewAppContext("")
	}
	return &Container{
		routes:       routes,
		cache:        cache,
		listeners:    listeners,
		sessions:     sessions,
		app:          app,
		appRoot:      opts.AppRoot,
		resourceRoot: opts.ResourceRoot,
		logger:       logger,
	}
}

// Start freezes the routing table and listener registry and announces the
// application context. It must happen before the first Dispatch.
func (c *Container) Start() error {
	if c.started.Load() {
		return nil
	}
	if err := c.routes.Validate(); err != nil {
		return fmt.Errorf("validate routes: %w", err)
	}
	c.routes.Seal()
	c.listeners.Seal()
	c.started.Store(true)

	_ = c.listeners.Notify(listener.ContextInitialized, listener.Event{App: c.app})
	c.logger.Info("container started",
		zap.Int("routes", len(c.routes.Routes())),
		zap.String("app_root", c.appRoot),
		zap.String("resource_root", c.resourceRoot),
	)
	return nil
}

// Shutdown announces context destruction, destroys cached components and
// closes the session store.
func (c *Container) Shutdown(context.Context) error {
	if !c.started.CompareAndSwap(true, false) {
		return nil
	}
	_ = c.listeners.Notify(listener.ContextDestroyed, listener.Event{App: c.app})
	c.cache.DestroyAll()
	if err := c.sessions.Close(); err != nil {
		return fmt.Errorf("close sessions: %w", err)
	}
	c.logger.Info("container stopped")
	return nil
}

func (c *Container) App() *web.AppContext { return c.app }

func (c *Container) InFlight() int64 { return c.inflight.Load() }

// Dispatch serves one request. It never panics; failures end in a
// best-effort error response.
func (c *Container) Dispatch(req *web.Request, res web.Response) {
	c.run(req, res)
}

func (c *Container) run(req *web.Request, res web.Response) (state State) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	start := time.Now()
	log := c.logger.With(
		zap.String("request_id", req.ID),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
	)
	binding := &sessionBinding{c: c, res: res, logger: log}
	req.Bind(c.app, binding, c)

	state = Received
	defer func() {
		if p := recover(); p != nil {
			state = c.fail(log, res, state, fmt.Errorf("panic: %v", p))
		}
		binding.save(req.Context())
		_ = c.listeners.Notify(listener.RequestDestroyed, listener.Event{App: c.app, Request: req, Response: res})
		log.Debug("request done",
			zap.String("state", state.String()),
			zap.Int("status", res.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	_ = c.listeners.Notify(listener.RequestInitialized, listener.Event{App: c.app, Request: req, Response: res})

	var err error
	state, err = c.serve(req, res, req.URL)
	if err != nil {
		return c.fail(log, res, state, err)
	}
	return state
}

// Forward serves url for an in-flight request.
func (c *Container) Forward(req *web.Request, res web.Response, url string) error {
	_, err := c.serve(req, res, url)
	return err
}

// serve returns the state reached: RESPONDED on success, otherwise the
// state in which err occurred.
func (c *Container) serve(req *web.Request, res web.Response, url string) (State, error) {
	handlerID, ok := c.routes.ResolveHandler(url)
	if !ok {
		return c.serveStatic(res, url)
	}

	if len(c.routes.ResolveFilters(url)) == 0 {
		if err := c.invoke(req, res, handlerID); err != nil {
			return Handling, err
		}
		return Responded, nil
	}

	chain, err := c.BuildChain(url)
	if err != nil {
		return Filtering, err
	}
	outcome, err := chain.Proceed(req, res)
	if err != nil {
		if chain.Handled() {
			return Handling, err
		}
		return Filtering, err
	}
	if outcome == web.ShortCircuited {
		c.logger.Debug("filter chain short-circuited",
			zap.String("request_id", req.ID),
			zap.String("url", url),
		)
	}
	return Responded, nil
}

func (c *Container) invoke(req *web.Request, res web.Response, handlerID string) error {
	desc, ok := c.routes.Handler(handlerID)
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrHandlerNotFound, handlerID)
	}
	h, err := c.cache.Handler(desc.Impl, web.NewConfig(desc.ID, desc.InitParams, c.app))
	if err != nil {
		return err
	}
	return callService(handlerID, h, req, res)
}

func callService(id string, h web.Handler, req *web.Request, res web.Response) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Component: id, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return wrapInvocation(id, h.Service(req, res))
}

// fail reports err and attempts a 500 response unless the response is
// already committed.
func (c *Container) fail(log *zap.Logger, res web.Response, state State, err error) State {
	log.Error("request failed",
		zap.String("state", state.String()),
		zap.String("kind", kindOf(err)),
		zap.Error(err),
	)
	if res.Committed() {
		return Errored
	}
	if rerr := res.Reset(); rerr != nil {
		return Errored
	}
	if serr := c.SendError(res, statusFor(err)); serr != nil {
		log.Warn("send error response failed", zap.Error(serr))
	}
	return Errored
}

func statusFor(err error) int {
	if errors.Is(err, protocol.ErrForwardLoop) {
		return http.StatusLoopDetected
	}
	return http.StatusInternalServerError
}
