// internal/modules/reqlog/reqlog.go
package reqlog

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"webapp-server/internal/web"
)

const Name = "reqlog"

// Filter logs every request passing through it and always forwards.
type Filter struct {
	logger  *zap.Logger
	name    string
	entered atomic.Int64
}

func New(logger *zap.Logger) func() web.Component {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func() web.Component {
		return &Filter{logger: logger}
	}
}

func (f *Filter) Init(cfg web.Config) error {
	f.name = cfg.Name()
	f.logger = f.logger.Named(f.name)
	return nil
}

func (f *Filter) DoFilter(req *web.Request, res web.Response, next web.Chain) error {
	f.entered.Add(1)
	start := time.Now()

	outcome, err := next.Proceed(req, res)

	f.logger.Info("request",
		zap.String("request_id", req.ID),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", res.Status()),
		zap.String("outcome", outcome.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

// Entered reports whether the filter has seen at least one request.
func (f *Filter) Entered() bool { return f.entered.Load() > 0 }

func (f *Filter) Count() int64 { return f.entered.Load() }
