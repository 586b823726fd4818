package web

import (
	"bytes"
	"net/http"

	"webapp-server/internal/protocol"
)

// Response is the sink a component writes to. Status and headers may be
// changed until the first body write commits them.
type Response interface {
	Header() http.Header
	SetHeader(name, value string)
	SetStatus(code int)
	Status() int
	Write(p []byte) (int, error)
	Flush() error
	Committed() bool
	// Reset discards status and headers; it fails once committed.
	Reset() error
}

// ResponseWrapper delegates to an inner response; filters embed it and
// override what they need.
type ResponseWrapper struct {
	Response
}

func (w *ResponseWrapper) Unwrap() Response { return w.Response }

// Recorder is an in-memory Response.
type Recorder struct {
	status    int
	header    http.Header
	Body      bytes.Buffer
	committed bool
	flushed   int
}

func NewRecorder() *Recorder {
	return &Recorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *Recorder) Header() http.Header { return r.header }

func (r *Recorder) SetHeader(name, value string) { r.header.Set(name, value) }

func (r *Recorder) SetStatus(code int) {
	if !r.committed {
		r.status = code
	}
}

func (r *Recorder) Status() int { return r.status }

func (r *Recorder) Write(p []byte) (int, error) {
	r.committed = true
	return r.Body.Write(p)
}

func (r *Recorder) Flush() error {
	r.committed = true
	r.flushed++
	return nil
}

func (r *Recorder) Committed() bool { return r.committed }

func (r *Recorder) Reset() error {
	if r.committed {
		return protocol.ErrResponseCommitted
	}
	r.status = http.StatusOK
	r.header = make(http.Header)
	return nil
}
