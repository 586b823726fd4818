package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webapp-server/internal/accesslog"
	"webapp-server/internal/component"
	"webapp-server/internal/config"
	"webapp-server/internal/container"
	"webapp-server/internal/db"
	"webapp-server/internal/descriptor"
	"webapp-server/internal/listener"
	"webapp-server/internal/modules"
	"webapp-server/internal/router"
	"webapp-server/internal/session"
	"webapp-server/internal/transport"
	"webapp-server/internal/web"
)

// readTimeout bounds a client that connects but stalls before finishing its
// request line and headers.
const readTimeout = 30 * time.Second

// app is one fully wired server process.
type app struct {
	cfg       config.ServerConfig
	logger    *zap.Logger
	routes    *router.Table
	listeners *listener.Registry
	container *container.Container
	server    *transport.Server

	memory     *session.MemoryStore
	redisStore *session.RedisStore
	redis      *redis.Client
	access *accesslog.Store
}

// deployment is what a descriptor is loaded into.
type deployment struct {
	routes     *router.Table
	app        *web.AppContext
	components *component.Factories
	listeners  *listener.Registry
}

// loadDeployment registers the built-in components and listeners and applies
// the descriptor at cfg.Descriptor. access may be nil when nothing is recorded.
func loadDeployment(cfg config.ServerConfig, access *accesslog.Store, logger *zap.Logger) (*deployment, error) {
	d := &deployment{
		routes:     router.NewTable(),
		app:        web.NewAppContext(cfg.AppRoot),
		components: component.NewFactories(),
		listeners:  listener.NewRegistry(logger.Named("listener")),
	}
	if err := modules.Register(d.components, logger); err != nil {
		return nil, err
	}
	listenerFactories := listener.NewFactories()
	if err := listenerFactories.Register(accesslog.Name, accesslog.Factory(access)); err != nil {
		return nil, err
	}

	desc, err := descriptor.Load(cfg.Descriptor)
	if err != nil {
		return nil, err
	}
	err = desc.Apply(cfg.Descriptor, descriptor.Target{
		Routes:            d.routes,
		App:               d.app,
		Components:        d.components,
		Listeners:         d.listeners,
		ListenerFactories: listenerFactories,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newApp(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.AccessLog.Path != "" {
		if a.access, err = accesslog.Open(cfg.AccessLog.Path); err != nil {
			return nil, err
		}
	}

	dep, err := loadDeployment(cfg, a.access, logger)
	if err != nil {
		return nil, err
	}
	a.routes = dep.routes
	a.listeners = dep.listeners

	sessions, err := a.openSessions(ctx, dep)
	if err != nil {
		return nil, err
	}

	cache := component.NewCache(dep.components, logger.Named("component"))
	a.container = container.New(dep.routes, cache, dep.listeners, sessions, dep.app, container.Options{
		AppRoot:      cfg.AppRoot,
		ResourceRoot: cfg.ResourceRoot,
		Logger:       logger.Named("container"),
	})
	if err := a.container.Start(); err != nil {
		return nil, err
	}
	a.server = transport.NewServer(a.container, transport.Options{
		Addr:        cfg.ListenAddr,
		ReadTimeout: readTimeout,
		Logger:      logger.Named("transport"),
	})
	return a, nil
}

func (a *app) openSessions(ctx context.Context, dep *deployment) (session.Store, error) {
	switch a.cfg.Session.Backend {
	case "redis":
		client, err := db.NewRedisClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.redisStore = session.NewRedisStore(client, session.RedisOptions{
			KeyPrefix: a.cfg.Redis.KeyPrefix,
			TTL:       a.cfg.Session.TTL(),
			Logger:    a.logger.Named("session"),
		})
		return a.redisStore, nil
	case "memory", "":
		a.memory = session.NewMemoryStore(session.MemoryOptions{
			TTL:        a.cfg.Session.TTL(),
			GCInterval: a.cfg.Session.GCInterval(),
			Logger:     a.logger.Named("session"),
			OnExpire: func(s *session.Session) {
				_ = dep.listeners.Notify(listener.SessionDestroyed, listener.Event{App: dep.app, Session: s})
			},
		})
		return a.memory, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", a.cfg.Session.Backend)
	}
}

// run serves until ctx is done, then drains connections and stops the
// container.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		a.logger.Info("shutting down")
		return errors.Join(a.server.Shutdown(sctx), a.container.Shutdown(sctx))
	})
	go a.server.ReportStats(gctx, time.Minute)
	if a.memory != nil {
		a.memory.StartGC(gctx)
	}
	if a.redis != nil {
		db.StartHealthCheck(gctx, a.redis, a.logger.Named("redis"), 0)
		a.redisStore.StartSweep(gctx, a.cfg.Session.GCInterval())
	}
	return g.Wait()
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.access != nil {
		_ = a.access.Close()
	}
}
