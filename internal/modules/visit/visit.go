// internal/modules/visit/visit.go
package visit

import (
	"fmt"

	"webapp-server/internal/protocol"
	"webapp-server/internal/web"
)

const (
	Name      = "visit"
	attrCount = "visits"
)

// Handler counts visits per session. GET with ?logout=1 invalidates the session.
type Handler struct{}

func New() web.Component { return &Handler{} }

func (h *Handler) Init(web.Config) error { return nil }

func (h *Handler) Service(req *web.Request, res web.Response) error {
	res.SetHeader("Content-Type", "text/plain; charset=utf-8")

	if req.Parameter("logout") != "" {
		if err := req.InvalidateSession(); err != nil {
			_, werr := fmt.Fprint(res, "no session")
			return werr
		}
		_, err := fmt.Fprint(res, "bye")
		return err
	}

	s, err := req.Session(true)
	if err != nil {
		return err
	}
	if s == nil {
		return protocol.ErrSessionNotFound
	}
	n := count(s.Attribute(attrCount)) + 1
	s.SetAttribute(attrCount, n)

	_, err = fmt.Fprintf(res, "session=%s visits=%d", s.ID(), n)
	return err
}

// count accepts the int stored in memory and the float64 a redis round trip yields.
func count(v any, ok bool) int {
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
