package container

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"webapp-server/internal/component"
	"webapp-server/internal/listener"
	"webapp-server/internal/modules/echo"
	"webapp-server/internal/modules/reqlog"
	"webapp-server/internal/router"
	"webapp-server/internal/session"
	"webapp-server/internal/web"
)

type fixture struct {
	t         *testing.T
	routes    *router.Table
	factories *component.Factories
	cache     *component.Cache
	listeners *listener.Registry
	sessions  *session.MemoryStore
	appRoot   string
	resRoot   string
	c         *Container
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		routes:    router.NewTable(),
		factories: component.NewFactories(),
		listeners: listener.NewRegistry(nil),
		sessions:  session.NewMemoryStore(session.MemoryOptions{}),
		appRoot:   t.TempDir(),
		resRoot:   t.TempDir(),
	}
	f.cache = component.NewCache(f.factories, nil)
	require.NoError(t, f.factories.Register(echo.Name, echo.New))
	require.NoError(t, f.factories.Register(reqlog.Name, reqlog.New(nil)))
	return f
}

func (f *fixture) handler(id, impl string, params map[string]string) *fixture {
	require.NoError(f.t, f.routes.AddHandler(router.HandlerDescriptor{ID: id, Impl: impl, InitParams: params}))
	return f
}

func (f *fixture) filter(id, impl string) *fixture {
	require.NoError(f.t, f.routes.AddFilter(router.FilterDescriptor{ID: id, Impl: impl}))
	return f
}

func (f *fixture) route(pattern, handlerID string, filters ...string) *fixture {
	require.NoError(f.t, f.routes.AddRoute(pattern, handlerID))
	for _, id := range filters {
		require.NoError(f.t, f.routes.AddFilterBinding(pattern, id))
	}
	return f
}

func (f *fixture) file(root, name, content string) string {
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (f *fixture) start() *Container {
	f.c = New(f.routes, f.cache, f.listeners, f.sessions, web.NewAppContext("test"), Options{
		AppRoot:      f.appRoot,
		ResourceRoot: f.resRoot,
	})
	require.NoError(f.t, f.c.Start())
	return f.c
}

func (f *fixture) get(url string) (*web.Recorder, State) {
	return f.do(web.NewTestRequest(http.MethodGet, url, nil))
}

func (f *fixture) do(req *web.Request) (*web.Recorder, State) {
	rec := web.NewRecorder()
	state := f.c.run(req, rec)
	return rec, state
}

// orderLog records the order in which filters and handlers run.
type orderLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *orderLog) add(s string) {
	l.mu.Lock()
	l.steps = append(l.steps, s)
	l.mu.Unlock()
}

func (l *orderLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

type orderFilter struct {
	log   *orderLog
	name  string
	block bool
}

func (o *orderFilter) Init(cfg web.Config) error {
	o.name = cfg.Name()
	return nil
}

func (o *orderFilter) DoFilter(req *web.Request, res web.Response, next web.Chain) error {
	o.log.add(o.name)
	if o.block {
		res.SetStatus(http.StatusForbidden)
		_, err := res.Write([]byte("blocked by " + o.name))
		return err
	}
	_, err := next.Proceed(req, res)
	return err
}

type orderHandler struct {
	log *orderLog
}

func (o *orderHandler) Init(web.Config) error { return nil }

func (o *orderHandler) Service(req *web.Request, res web.Response) error {
	o.log.add("handler")
	_, err := res.Write([]byte("handled"))
	return err
}
