package protocol

import "errors"

var (
	ErrTransport          = errors.New("transport error")
	ErrHandlerNotFound    = errors.New("handler not found")
	ErrFilterNotFound     = errors.New("filter not found")
	ErrFactoryNotFound    = errors.New("factory not found")
	ErrNotHandler         = errors.New("component is not a handler")
	ErrNotFilter          = errors.New("component is not a filter")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionInvalid     = errors.New("session already invalidated")
	ErrResponseCommitted  = errors.New("response already committed")
	ErrSealed             = errors.New("registry sealed")
	ErrForwardLoop        = errors.New("forward depth exceeded")
	ErrHijacked           = errors.New("connection hijacked")
	ErrHijackNotSupported = errors.New("response does not support hijacking")
)

const (
	SessionCookie = "JSESSIONID"
	HeaderReqID   = "X-Request-ID"
)
