package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webapp-server/internal/listener"
	"webapp-server/internal/modules/echo"
	"webapp-server/internal/modules/reqlog"
	"webapp-server/internal/modules/visit"
	"webapp-server/internal/protocol"
	"webapp-server/internal/router"
	"webapp-server/internal/web"
)

func TestRouteToHandler(t *testing.T) {
	f := newFixture(t).handler("hello", echo.Name, nil).route("/hello", "hello")
	f.start()

	rec, state := f.get("/hello")
	assert.Equal(t, Responded, state)
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, echo.DefaultBody, rec.Body.String())
}

func TestFilterForwardsToHandler(t *testing.T) {
	f := newFixture(t).
		handler("hello", echo.Name, nil).
		filter("logging", reqlog.Name).
		route("/hello", "hello", "logging")
	f.start()

	rec, state := f.get("/hello")
	assert.Equal(t, Responded, state)
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, echo.DefaultBody, rec.Body.String())

	inst, err := f.cache.Filter(reqlog.Name, web.Config{})
	require.NoError(t, err)
	assert.True(t, inst.(*reqlog.Filter).Entered())
}

func TestStaticResourceFromAppRoot(t *testing.T) {
	f := newFixture(t)
	css := "body {\n  color: red;\r\n}\n\nno newline at end"
	f.file(f.appRoot, "style.css", css)
	f.file(f.resRoot, "style.css", "resource root copy")
	f.start()

	rec, state := f.get("/style.css")
	assert.Equal(t, Responded, state)
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, css, rec.Body.String())
}

func TestStaticResourceFallsBackToResourceRoot(t *testing.T) {
	f := newFixture(t)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff}
	f.file(f.resRoot, "img/logo.png", string(png))
	f.start()

	rec, _ := f.get("/img/logo.png")
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(png)), rec.Header().Get("Content-Length"))
	assert.Equal(t, png, rec.Body.Bytes())
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	f.file(f.resRoot, "404.html", "<h1>custom not found</h1>")
	f.start()

	for _, url := range []string{"/missing.xyz", "/", "/img", "/../etc/passwd"} {
		rec, state := f.get(url)
		assert.Equal(t, Responded, state, url)
		assert.Equal(t, http.StatusNotFound, rec.Status(), url)
		assert.Equal(t, "<h1>custom not found</h1>", rec.Body.String(), url)
		assert.Equal(t, protocol.ContentHTML.MIME, rec.Header().Get("Content-Type"))
	}
}

func TestNotFoundWithoutErrorPage(t *testing.T) {
	f := newFixture(t)
	f.start()

	rec, _ := f.get("/missing.xyz")
	assert.Equal(t, http.StatusNotFound, rec.Status())
	assert.Contains(t, rec.Body.String(), "404 Not Found")
}

func TestRouteWinsOverStaticFile(t *testing.T) {
	f := newFixture(t).handler("hello", echo.Name, nil).route("/index.html", "hello")
	f.file(f.appRoot, "index.html", "static")
	f.start()

	rec, _ := f.get("/index.html")
	assert.Equal(t, echo.DefaultBody, rec.Body.String())
}

func registerOrder(t *testing.T, f *fixture, log *orderLog, blocking string) {
	t.Helper()
	for _, name := range []string{"f1", "f2", "f3"} {
		block := name == blocking
		require.NoError(t, f.factories.Register("order-"+name, func() web.Component {
			return &orderFilter{log: log, block: block}
		}))
		f.filter(name, "order-"+name)
	}
	require.NoError(t, f.factories.Register("order-handler", func() web.Component {
		return &orderHandler{log: log}
	}))
	f.handler("h", "order-handler", nil).route("/x", "h", "f1", "f2", "f3")
}

func TestFilterOrder(t *testing.T) {
	f := newFixture(t)
	log := &orderLog{}
	registerOrder(t, f, log, "")
	f.start()

	for i := 0; i < 3; i++ {
		rec, state := f.get("/x")
		assert.Equal(t, Responded, state)
		assert.Equal(t, "handled", rec.Body.String())
	}
	expected := []string{"f1", "f2", "f3", "handler"}
	assert.Equal(t, append(append(append([]string{}, expected...), expected...), expected...), log.get())
}

func TestFilterShortCircuit(t *testing.T) {
	f := newFixture(t)
	log := &orderLog{}
	registerOrder(t, f, log, "f2")
	f.start()

	rec, state := f.get("/x")
	assert.Equal(t, Responded, state)
	assert.Equal(t, http.StatusForbidden, rec.Status())
	assert.Equal(t, "blocked by f2", rec.Body.String())
	assert.Equal(t, []string{"f1", "f2"}, log.get())
}

func TestChainOutcome(t *testing.T) {
	f := newFixture(t)
	log := &orderLog{}
	registerOrder(t, f, log, "f3")
	f.start()

	chain, err := f.c.BuildChain("/x")
	require.NoError(t, err)
	outcome, err := chain.Proceed(web.NewTestRequest(http.MethodGet, "/x", nil), web.NewRecorder())
	require.NoError(t, err)
	assert.Equal(t, web.ShortCircuited, outcome)
	assert.False(t, chain.Handled())

	_, err = f.c.BuildChain("/nowhere")
	assert.ErrorIs(t, err, protocol.ErrHandlerNotFound)
}

type flaky struct {
	fail  *atomic.Bool
	inits *atomic.Int32
}

func (h *flaky) Init(web.Config) error {
	h.inits.Add(1)
	if h.fail.Load() {
		return errors.New("database unavailable")
	}
	return nil
}

func (h *flaky) Service(req *web.Request, res web.Response) error {
	_, err := res.Write([]byte("ok"))
	return err
}

func TestInitFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	var fail atomic.Bool
	var inits atomic.Int32
	fail.Store(true)
	require.NoError(t, f.factories.Register("flaky", func() web.Component {
		return &flaky{fail: &fail, inits: &inits}
	}))
	f.handler("flaky", "flaky", nil).route("/flaky", "flaky")
	f.file(f.resRoot, "500.html", "server error page")
	f.start()

	rec, state := f.get("/flaky")
	assert.Equal(t, Errored, state)
	assert.Equal(t, http.StatusInternalServerError, rec.Status())
	assert.Equal(t, "server error page", rec.Body.String())

	fail.Store(false)
	for i := 0; i < 3; i++ {
		rec, state = f.get("/flaky")
		assert.Equal(t, Responded, state)
		assert.Equal(t, "ok", rec.Body.String())
	}
	assert.Equal(t, int32(2), inits.Load())
}

func TestHandlerErrorAndPanic(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.factories.Register("failing", func() web.Component {
		return web.HandlerFunc(func(*web.Request, web.Response) error { return errors.New("bad input") })
	}))
	require.NoError(t, f.factories.Register("panicking", func() web.Component {
		return web.HandlerFunc(func(*web.Request, web.Response) error { panic("nil map") })
	}))
	require.NoError(t, f.factories.Register("partial", func() web.Component {
		return web.HandlerFunc(func(_ *web.Request, res web.Response) error {
			_, _ = res.Write([]byte("half"))
			return errors.New("late failure")
		})
	}))
	f.handler("failing", "failing", nil).route("/failing", "failing")
	f.handler("panicking", "panicking", nil).route("/panicking", "panicking")
	f.handler("partial", "partial", nil).route("/partial", "partial")
	f.start()

	for _, url := range []string{"/failing", "/panicking"} {
		rec, state := f.get(url)
		assert.Equal(t, Errored, state, url)
		assert.Equal(t, http.StatusInternalServerError, rec.Status(), url)
	}

	// committed responses are left as they are
	rec, state := f.get("/partial")
	assert.Equal(t, Errored, state)
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, "half", rec.Body.String())
}

func TestHandlerMissingByIdentity(t *testing.T) {
	f := newFixture(t).handler("hello", echo.Name, nil).route("/hello", "hello")
	f.start()
	// a table that skipped validation, as after a handler was dropped
	f.c.routes = router.NewTable()
	require.NoError(t, f.c.routes.AddRoute("/ghost", "ghost"))

	rec, state := f.get("/ghost")
	assert.Equal(t, Errored, state)
	assert.Equal(t, http.StatusInternalServerError, rec.Status())
	assert.Equal(t, "handler_not_found", kindOf(fmt.Errorf("wrap: %w", protocol.ErrHandlerNotFound)))
}

func TestStartRejectsInvalidTable(t *testing.T) {
	f := newFixture(t).route("/hello", "undeclared")
	c := New(f.routes, f.cache, f.listeners, f.sessions, nil, Options{})
	err := c.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrHandlerNotFound)
	assert.False(t, f.routes.Sealed())
}

func TestLifecycleEvents(t *testing.T) {
	f := newFixture(t).handler("hello", echo.Name, nil).route("/hello", "hello")
	var mu sync.Mutex
	var events []string
	record := listener.Func(func(ev listener.Event) error {
		mu.Lock()
		defer mu.Unlock()
		url := ""
		if ev.Request != nil {
			url = ev.Request.URL
		}
		events = append(events, ev.Kind.String()+url)
		return nil
	})
	for _, k := range []listener.Kind{listener.ContextInitialized, listener.RequestInitialized, listener.RequestDestroyed, listener.ContextDestroyed} {
		require.NoError(t, f.listeners.Register(k, record))
	}
	require.NoError(t, f.listeners.Register(listener.RequestInitialized, listener.Func(func(listener.Event) error {
		return errors.New("observer failure")
	})))
	f.start()

	rec, state := f.get("/hello")
	assert.Equal(t, Responded, state)
	assert.Equal(t, echo.DefaultBody, rec.Body.String())

	require.NoError(t, f.c.Shutdown(context.Background()))
	assert.Equal(t, []string{
		"context_initialized",
		"request_initialized/hello",
		"request_destroyed/hello",
		"context_destroyed",
	}, events)

	assert.ErrorIs(t, f.listeners.Register(listener.RequestInitialized, record), protocol.ErrSealed)
}

func TestSessionContinuity(t *testing.T) {
	f := newFixture(t).handler("visit", visit.Name, nil).route("/visit", "visit")
	require.NoError(t, f.factories.Register(visit.Name, visit.New))
	var created, destroyed atomic.Int32
	require.NoError(t, f.listeners.Register(listener.SessionCreated, listener.Func(func(listener.Event) error {
		created.Add(1)
		return nil
	})))
	require.NoError(t, f.listeners.Register(listener.SessionDestroyed, listener.Func(func(listener.Event) error {
		destroyed.Add(1)
		return nil
	})))
	f.start()

	rec, _ := f.get("/visit")
	cookie := rec.Header().Get("Set-Cookie")
	require.True(t, strings.HasPrefix(cookie, protocol.SessionCookie+"="), cookie)
	assert.Contains(t, rec.Body.String(), "visits=1")
	id := strings.TrimPrefix(strings.SplitN(cookie, ";", 2)[0], protocol.SessionCookie+"=")

	withCookie := func(url string) *web.Request {
		req := web.NewTestRequest(http.MethodGet, url, nil)
		req.Header.Set("Cookie", protocol.SessionCookie+"="+id)
		return req
	}

	rec, _ = f.do(withCookie("/visit"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
	assert.Equal(t, "session="+id+" visits=2", rec.Body.String())

	rec, _ = f.do(withCookie("/visit?logout=1"))
	assert.Equal(t, "bye", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")

	rec, _ = f.do(withCookie("/visit"))
	assert.Contains(t, rec.Body.String(), "visits=1")
	assert.NotContains(t, rec.Body.String(), id)

	assert.Equal(t, int32(2), created.Load())
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestForward(t *testing.T) {
	f := newFixture(t).handler("hello", echo.Name, nil).route("/hello", "hello")
	require.NoError(t, f.factories.Register("fwd", func() web.Component {
		return web.HandlerFunc(func(req *web.Request, res web.Response) error {
			return req.Forward(req.Parameter("to"), res)
		})
	}))
	f.handler("fwd", "fwd", nil).route("/fwd", "fwd")
	f.file(f.appRoot, "page.txt", "static page")
	f.start()

	rec, _ := f.get("/fwd?to=/hello")
	assert.Equal(t, echo.DefaultBody, rec.Body.String())

	rec, _ = f.get("/fwd?to=/page.txt")
	assert.Equal(t, "static page", rec.Body.String())

	rec, state := f.get("/fwd?to=/fwd")
	assert.Equal(t, Errored, state)
	assert.Equal(t, http.StatusLoopDetected, rec.Status())
}

func TestConcurrentDispatchSharesOneInstance(t *testing.T) {
	f := newFixture(t)
	var inits atomic.Int32
	var running, peak atomic.Int32
	require.NoError(t, f.factories.Register("slow", func() web.Component {
		return &slowHandler{inits: &inits, running: &running, peak: &peak}
	}))
	f.handler("a", "slow", nil).route("/a", "a")
	f.handler("b", "slow", nil).route("/b", "b")
	f.start()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := "/a"
			if i%2 == 1 {
				url = "/b"
			}
			rec, state := f.get(url)
			assert.Equal(t, Responded, state)
			assert.Equal(t, "slow", rec.Body.String())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	assert.Greater(t, peak.Load(), int32(1))
	assert.Zero(t, f.c.InFlight())
}

type slowHandler struct {
	inits, running, peak *atomic.Int32
}

func (h *slowHandler) Init(web.Config) error {
	h.inits.Add(1)
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (h *slowHandler) Service(req *web.Request, res web.Response) error {
	n := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	_, err := res.Write([]byte("slow"))
	return err
}
