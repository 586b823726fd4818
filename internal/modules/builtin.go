// Package modules registers the components shipped with the server.
package modules

import (
	"fmt"

	"go.uber.org/zap"

	"webapp-server/internal/component"
	"webapp-server/internal/modules/echo"
	"webapp-server/internal/modules/gzipfilter"
	"webapp-server/internal/modules/reqlog"
	"webapp-server/internal/modules/visit"
	"webapp-server/internal/modules/wsecho"
)

func Register(factories *component.Factories, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	builtins := []struct {
		name    string
		factory component.Factory
	}{
		{echo.Name, echo.New},
		{visit.Name, visit.New},
		{gzipfilter.Name, gzipfilter.New},
		{reqlog.Name, reqlog.New(logger.Named("reqlog"))},
		{wsecho.Name, wsecho.New(logger.Named("wsecho"))},
	}
	for _, b := range builtins {
		if err := factories.Register(b.name, b.factory); err != nil {
			return fmt.Errorf("register %s: %w", b.name, err)
		}
	}
	return nil
}
