package accesslog

import (
	"errors"
	"time"

	"webapp-server/internal/listener"
)

const (
	// Name is the listener name used in deployment descriptors.
	Name      = "accesslog"
	attrStart = "accesslog.start"
)

// Listener writes one row per request when the request is destroyed.
type Listener struct {
	store *Store
	now   func() time.Time
}

func NewListener(store *Store) *Listener {
	return &Listener{store: store, now: time.Now}
}

// Factory adapts the listener for a listener factory registry. A nil store
// fails construction, so a descriptor naming the listener is rejected.
func Factory(store *Store) listener.Factory {
	return func() (any, error) {
		if store == nil {
			return nil, errors.New("access_log.path is not configured")
		}
		return NewListener(store), nil
	}
}

func (l *Listener) RequestInitialized(ev listener.Event) error {
	ev.Request.SetAttribute(attrStart, l.now())
	return nil
}

func (l *Listener) RequestDestroyed(ev listener.Event) error {
	req := ev.Request
	end := l.now()
	start := end
	if v, ok := req.Attribute(attrStart); ok {
		if t, ok := v.(time.Time); ok {
			start = t
		}
	}
	status := 0
	if ev.Response != nil {
		status = ev.Response.Status()
	}
	return l.store.Record(req.Context(), Entry{
		Time:       start,
		RequestID:  req.ID,
		Method:     req.Method,
		URL:        req.URL,
		Status:     status,
		Duration:   end.Sub(start),
		RemoteAddr: req.RemoteAddr,
	})
}
