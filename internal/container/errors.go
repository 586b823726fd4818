package container

import (
	"errors"
	"fmt"

	"webapp-server/internal/component"
	"webapp-server/internal/protocol"
)

// HandlerError reports a failed Service or DoFilter call.
type HandlerError struct {
	Component string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Component, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func kindOf(err error) string {
	var handlerErr *HandlerError
	var initErr *component.InitError
	switch {
	case errors.As(err, &handlerErr):
		return "handler_invocation"
	case errors.As(err, &initErr):
		return "component_initialization"
	case errors.Is(err, protocol.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, protocol.ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

// wrapInvocation tags err with the component that raised it. Errors passed up
// a filter chain keep their original kind.
func wrapInvocation(id string, err error) error {
	if err == nil {
		return nil
	}
	var handlerErr *HandlerError
	var initErr *component.InitError
	if errors.As(err, &handlerErr) || errors.As(err, &initErr) || errors.Is(err, protocol.ErrHandlerNotFound) {
		return err
	}
	return &HandlerError{Component: id, Err: err}
}
