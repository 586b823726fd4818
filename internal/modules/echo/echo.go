// internal/modules/echo/echo.go
package echo

import (
	"fmt"

	"webapp-server/internal/web"
)

const (
	Name        = "echo"
	DefaultBody = "Hello, World!"
)

// Handler answers every request with a fixed body, configurable through the
// "message" init parameter.
type Handler struct {
	name string
	body string
}

func New() web.Component { return &Handler{} }

func (h *Handler) Init(cfg web.Config) error {
	h.name = cfg.Name()
	h.body = cfg.InitParameterOr("message", DefaultBody)
	return nil
}

func (h *Handler) Service(req *web.Request, res web.Response) error {
	res.SetHeader("Content-Type", "text/plain; charset=utf-8")
	res.SetHeader("X-Handler", h.name)
	if _, err := fmt.Fprint(res, h.body); err != nil {
		return err
	}
	return nil
}
