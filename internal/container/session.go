package container

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"webapp-server/internal/listener"
	"webapp-server/internal/protocol"
	"webapp-server/internal/session"
	"webapp-server/internal/web"
)

// sessionBinding resolves the session of a single request from its cookie
// and issues the cookie for new sessions.
type sessionBinding struct {
	c       *Container
	res     web.Response
	logger  *zap.Logger
	current *session.Session
}

func (b *sessionBinding) Session(req *web.Request, create bool) (*session.Session, error) {
	if b.current != nil && b.current.Valid() {
		return b.current, nil
	}
	b.current = nil
	ctx := req.Context()

	if id, ok := req.Cookie(protocol.SessionCookie); ok && id != "" {
		s, err := b.c.sessions.Get(ctx, id)
		switch {
		case err == nil:
			s.Touch()
			b.current = s
			return s, nil
		case !errors.Is(err, protocol.ErrSessionNotFound):
			return nil, err
		}
	}
	if !create {
		return nil, nil
	}

	s, err := b.c.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	b.current = s
	b.setCookie(&http.Cookie{Name: protocol.SessionCookie, Value: s.ID(), Path: "/", HttpOnly: true})
	_ = b.c.listeners.Notify(listener.SessionCreated, listener.Event{App: b.c.app, Request: req, Session: s})
	return s, nil
}

func (b *sessionBinding) Invalidate(req *web.Request) error {
	s, err := b.Session(req, false)
	if err != nil {
		return err
	}
	if s == nil {
		return protocol.ErrSessionNotFound
	}
	if err := b.c.sessions.Invalidate(req.Context(), s.ID()); err != nil {
		return err
	}
	b.current = nil
	b.setCookie(&http.Cookie{Name: protocol.SessionCookie, Value: "", Path: "/", MaxAge: -1})
	_ = b.c.listeners.Notify(listener.SessionDestroyed, listener.Event{App: b.c.app, Request: req, Session: s})
	return nil
}

func (b *sessionBinding) setCookie(cookie *http.Cookie) {
	if b.res.Committed() {
		b.logger.Warn("cannot set session cookie on committed response",
			zap.String("cookie", cookie.Name),
		)
		return
	}
	b.res.Header().Add("Set-Cookie", cookie.String())
}

func (b *sessionBinding) save(ctx context.Context) {
	if b.current == nil || !b.current.Valid() {
		return
	}
	if err := b.c.sessions.Save(ctx, b.current); err != nil {
		b.logger.Warn("save session failed",
			zap.String("session", b.current.ID()),
			zap.Error(err),
		)
	}
}
