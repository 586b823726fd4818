package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"webapp-server/internal/protocol"
	"webapp-server/internal/session"
)

// SessionBinder resolves the session of one request. The container installs
// a fresh binder per request.
type SessionBinder interface {
	Session(req *Request, create bool) (*session.Session, error)
	Invalidate(req *Request) error
}

// Forwarder re-dispatches a request to another route.
type Forwarder interface {
	Forward(req *Request, res Response, url string) error
}

// Request is owned by the goroutine serving it and is never shared.
type Request struct {
	ctx context.Context

	ID         string
	Method     string
	URL        string
	RawQuery   string
	Proto      string
	RemoteAddr string
	Header     http.Header
	Body       io.Reader

	raw   *http.Request
	query url.Values
	attrs map[string]any

	app       *AppContext
	sessions  SessionBinder
	forwarder Forwarder
	depth     int
}

// NewRequest adapts a parsed HTTP request. Only the path takes part in routing.
func NewRequest(ctx context.Context, raw *http.Request) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	id := raw.Header.Get(protocol.HeaderReqID)
	if id == "" {
		id = uuid.NewString()
	}
	var body io.Reader = http.NoBody
	if raw.Body != nil {
		body = raw.Body
	}
	return &Request{
		ctx:        ctx,
		ID:         id,
		Method:     raw.Method,
		URL:        raw.URL.Path,
		RawQuery:   raw.URL.RawQuery,
		Proto:      raw.Proto,
		RemoteAddr: raw.RemoteAddr,
		Header:     raw.Header,
		Body:       body,
		raw:        raw,
		attrs:      make(map[string]any),
	}
}

// NewTestRequest builds a request without a wire representation.
func NewTestRequest(method, target string, body []byte) *Request {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	raw, err := http.NewRequest(method, target, r)
	if err != nil {
		panic(err)
	}
	return NewRequest(context.Background(), raw)
}

func (r *Request) Context() context.Context { return r.ctx }

// HTTPRequest exposes the underlying parsed request, e.g. for protocol upgrades.
func (r *Request) HTTPRequest() *http.Request { return r.raw }

func (r *Request) Parameter(name string) string {
	if r.query == nil {
		r.query, _ = url.ParseQuery(r.RawQuery)
	}
	return r.query.Get(name)
}

func (r *Request) Cookie(name string) (string, bool) {
	if r.raw == nil {
		return "", false
	}
	c, err := r.raw.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (r *Request) Attribute(name string) (any, bool) {
	v, ok := r.attrs[name]
	return v, ok
}

func (r *Request) SetAttribute(name string, value any) { r.attrs[name] = value }

func (r *Request) App() *AppContext { return r.app }

// Bind attaches container services to the request.
func (r *Request) Bind(app *AppContext, sessions SessionBinder, forwarder Forwarder) {
	r.app = app
	r.sessions = sessions
	r.forwarder = forwarder
}

// Session returns the client's session. With create set, a missing or
// invalidated session is replaced by a new one; otherwise nil is returned.
func (r *Request) Session(create bool) (*session.Session, error) {
	if r.sessions == nil {
		return nil, nil
	}
	return r.sessions.Session(r, create)
}

func (r *Request) InvalidateSession() error {
	if r.sessions == nil {
		return protocol.ErrSessionNotFound
	}
	return r.sessions.Invalidate(r)
}

const maxForwardDepth = 8

// Forward hands the request to the component mapped at url, without firing
// request lifecycle events again.
func (r *Request) Forward(url string, res Response) error {
	if r.forwarder == nil {
		return protocol.ErrHandlerNotFound
	}
	if r.depth >= maxForwardDepth {
		return protocol.ErrForwardLoop
	}
	r.depth++
	defer func() { r.depth-- }()
	return r.forwarder.Forward(r, res, url)
}
