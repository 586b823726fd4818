// internal/modules/gzipfilter/gzip.go
package gzipfilter

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"webapp-server/internal/web"
)

const Name = "gzip"

// Filter compresses the downstream body for clients accepting gzip.
// The "level" init parameter selects the compression level.
type Filter struct {
	level int
}

func New() web.Component { return &Filter{} }

func (f *Filter) Init(cfg web.Config) error {
	f.level = gzip.DefaultCompression
	if v := cfg.InitParameter("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if _, err := gzip.NewWriterLevel(nil, level); err != nil {
			return err
		}
		f.level = level
	}
	return nil
}

func (f *Filter) DoFilter(req *web.Request, res web.Response, next web.Chain) error {
	if !acceptsGzip(req.Header.Get("Accept-Encoding")) {
		_, err := next.Proceed(req, res)
		return err
	}

	out := &holdback{res: res}
	gz, err := gzip.NewWriterLevel(out, f.level)
	if err != nil {
		return err
	}
	w := &response{ResponseWrapper: web.ResponseWrapper{Response: res}, gz: gz, out: out}
	_, err = next.Proceed(req, w)
	if err != nil {
		// leave an uncommitted response to the error path
		if !res.Committed() {
			w.discard()
		}
		return err
	}
	return w.close()
}

// holdbackSize is how much compressed output is kept back before the
// response is committed.
const holdbackSize = 32 * 1024

// holdback buffers compressed output until it is released or grows past
// holdbackSize.
type holdback struct {
	res      web.Response
	buf      bytes.Buffer
	released bool
}

func (h *holdback) Write(p []byte) (int, error) {
	if h.released {
		return h.res.Write(p)
	}
	h.buf.Write(p)
	if h.buf.Len() > holdbackSize {
		if err := h.release(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (h *holdback) release() error {
	h.released = true
	if h.buf.Len() == 0 {
		return nil
	}
	_, err := h.res.Write(h.buf.Bytes())
	h.buf.Reset()
	return err
}

func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
		}
	}
	return false
}

type response struct {
	web.ResponseWrapper
	gz      *gzip.Writer
	out     *holdback
	started bool
}

func (r *response) Write(p []byte) (int, error) {
	if !r.started {
		r.started = true
		h := r.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
	}
	return r.gz.Write(p)
}

func (r *response) Flush() error {
	if r.started {
		if err := r.gz.Flush(); err != nil {
			return err
		}
		if err := r.out.release(); err != nil {
			return err
		}
	}
	return r.Response.Flush()
}

// close finishes the gzip stream; nothing is emitted for an empty body.
func (r *response) close() error {
	if !r.started {
		return nil
	}
	if err := r.gz.Close(); err != nil {
		return err
	}
	return r.out.release()
}

// discard drops the held-back output and the encoding headers.
func (r *response) discard() {
	r.out.buf.Reset()
	if r.started {
		h := r.Header()
		h.Del("Content-Encoding")
		h.Del("Vary")
	}
}
