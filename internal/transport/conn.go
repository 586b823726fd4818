package transport

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"webapp-server/internal/protocol"
)

// connResponse writes an HTTP/1.x response straight to the connection. The
// status line and headers go out on the first body write or flush; the body
// is delimited by closing the connection unless Content-Length is set.
type connResponse struct {
	conn   *bufferedConn
	proto  string
	status int
	header http.Header

	committed bool
	hijacked  bool
	err       error
}

func newConnResponse(conn *bufferedConn) *connResponse {
	return &connResponse{
		conn:   conn,
		proto:  "HTTP/1.1",
		status: http.StatusOK,
		header: make(http.Header),
	}
}

func (r *connResponse) Header() http.Header { return r.header }

func (r *connResponse) SetHeader(name, value string) { r.header.Set(name, value) }

func (r *connResponse) SetStatus(code int) {
	if !r.committed {
		r.status = code
	}
}

// WriteHeader lets the response serve as an http.ResponseWriter.
func (r *connResponse) WriteHeader(code int) {
	r.SetStatus(code)
	_ = r.commit()
}

func (r *connResponse) Status() int { return r.status }

func (r *connResponse) Write(p []byte) (int, error) {
	if r.hijacked {
		return 0, protocol.ErrHijacked
	}
	if err := r.commit(); err != nil {
		return 0, err
	}
	n, err := r.conn.writer.Write(p)
	if err != nil {
		r.err = fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		return n, r.err
	}
	return n, nil
}

func (r *connResponse) Flush() error {
	if r.hijacked {
		return protocol.ErrHijacked
	}
	if err := r.commit(); err != nil {
		return err
	}
	if err := r.conn.flush(); err != nil {
		r.err = fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		return r.err
	}
	return nil
}

func (r *connResponse) Committed() bool { return r.committed || r.hijacked }

func (r *connResponse) Reset() error {
	if r.Committed() {
		return protocol.ErrResponseCommitted
	}
	r.status = http.StatusOK
	r.header = make(http.Header)
	return nil
}

// Hijack hands the connection to the caller, e.g. for a websocket upgrade.
// Nothing must have been written yet.
func (r *connResponse) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if r.hijacked {
		return nil, nil, protocol.ErrHijacked
	}
	if r.committed {
		return nil, nil, protocol.ErrResponseCommitted
	}
	r.hijacked = true
	_ = r.conn.SetDeadline(time.Time{})
	return r.conn.Conn, bufio.NewReadWriter(r.conn.reader, r.conn.writer), nil
}

func (r *connResponse) commit() error {
	if r.committed {
		return r.err
	}
	r.committed = true

	r.header.Set("Connection", "close")
	if r.header.Get("Date") == "" {
		r.header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	w := r.conn.writer
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", r.proto, r.status, http.StatusText(r.status)); err != nil {
		r.err = fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		return r.err
	}
	if err := r.header.Write(w); err != nil {
		r.err = fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		return r.err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		r.err = fmt.Errorf("%w: %v", protocol.ErrTransport, err)
		return r.err
	}
	return nil
}

// finish commits an untouched response and pushes everything buffered.
func (r *connResponse) finish() error {
	if r.hijacked {
		return nil
	}
	if err := r.commit(); err != nil {
		return err
	}
	return r.Flush()
}
