// internal/modules/wsecho/wsecho.go
package wsecho

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webapp-server/internal/protocol"
	"webapp-server/internal/web"
)

const Name = "wsecho"

// Handler upgrades the connection to a websocket and echoes every message
// back until the peer closes. It needs the raw connection response; a
// wrapped response cannot be upgraded.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	maxSize  int64
}

func New(logger *zap.Logger) func() web.Component {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func() web.Component {
		return &Handler{logger: logger}
	}
}

func (h *Handler) Init(cfg web.Config) error {
	h.maxSize = 64 * 1024
	if v := cfg.InitParameter("max_message_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		h.maxSize = n
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return nil
}

func (h *Handler) Service(req *web.Request, res web.Response) error {
	w, ok := res.(http.ResponseWriter)
	if !ok || req.HTTPRequest() == nil {
		return protocol.ErrHijackNotSupported
	}
	if !websocket.IsWebSocketUpgrade(req.HTTPRequest()) {
		res.SetStatus(http.StatusBadRequest)
		_, err := res.Write([]byte("websocket upgrade required"))
		return err
	}

	conn, err := h.upgrader.Upgrade(w, req.HTTPRequest(), nil)
	if err != nil {
		// Upgrade already answered the client
		h.logger.Warn("websocket upgrade failed", zap.String("request_id", req.ID), zap.Error(err))
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxSize)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", zap.String("request_id", req.ID), zap.Error(err))
			}
			return nil
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return err
		}
	}
}
