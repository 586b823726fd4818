// internal/listener/listener.go
package listener

import (
	"webapp-server/internal/session"
	"webapp-server/internal/web"
)

type Kind int

const (
	RequestInitialized Kind = iota
	RequestDestroyed
	SessionCreated
	SessionDestroyed
	ContextInitialized
	ContextDestroyed
)

func (k Kind) String() string {
	switch k {
	case RequestInitialized:
		return "request_initialized"
	case RequestDestroyed:
		return "request_destroyed"
	case SessionCreated:
		return "session_created"
	case SessionDestroyed:
		return "session_destroyed"
	case ContextInitialized:
		return "context_initialized"
	case ContextDestroyed:
		return "context_destroyed"
	default:
		return "unknown"
	}
}

// Event is what listeners observe. Request and Response are set for request
// events, Session for session events.
type Event struct {
	Kind     Kind
	App      *web.AppContext
	Request  *web.Request
	Response web.Response
	Session  *session.Session
}

type Listener interface {
	Notify(ev Event) error
}

type Func func(ev Event) error

func (f Func) Notify(ev Event) error { return f(ev) }

type RequestListener interface {
	RequestInitialized(ev Event) error
	RequestDestroyed(ev Event) error
}

type SessionListener interface {
	SessionCreated(ev Event) error
	SessionDestroyed(ev Event) error
}

type ContextListener interface {
	ContextInitialized(ev Event) error
	ContextDestroyed(ev Event) error
}

type requestAdapter struct{ l RequestListener }

func (a requestAdapter) Notify(ev Event) error {
	if ev.Kind == RequestInitialized {
		return a.l.RequestInitialized(ev)
	}
	return a.l.RequestDestroyed(ev)
}

type sessionAdapter struct{ l SessionListener }

func (a sessionAdapter) Notify(ev Event) error {
	if ev.Kind == SessionCreated {
		return a.l.SessionCreated(ev)
	}
	return a.l.SessionDestroyed(ev)
}

type contextAdapter struct{ l ContextListener }

func (a contextAdapter) Notify(ev Event) error {
	if ev.Kind == ContextInitialized {
		return a.l.ContextInitialized(ev)
	}
	return a.l.ContextDestroyed(ev)
}
