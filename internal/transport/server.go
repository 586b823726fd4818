// Package transport accepts TCP connections, parses one HTTP/1.x request per
// connection and hands it to the dispatcher with a response bound to the
// connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"webapp-server/internal/web"
)

type Dispatcher interface {
	Dispatch(req *web.Request, res web.Response)
}

type DispatcherFunc func(req *web.Request, res web.Response)

func (f DispatcherFunc) Dispatch(req *web.Request, res web.Response) { f(req, res) }

type Options struct {
	Addr string
	// ReadTimeout bounds how long a client may take to send its request.
	// Zero means no limit.
	ReadTimeout time.Duration
	Logger      *zap.Logger
}

// Server runs one goroutine per connection. There is no keep-alive: every
// response ends by closing the connection.
type Server struct {
	addr        string
	readTimeout time.Duration
	dispatcher  Dispatcher
	logger      *zap.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}

	wg      sync.WaitGroup
	closing atomic.Bool
	served  atomic.Int64
	stats   struct {
		accepted, badRequests, timeouts, hijacked atomic.Uint64
	}
}

func NewServer(dispatcher Dispatcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:        opts.Addr,
		readTimeout: opts.ReadTimeout,
		dispatcher:  dispatcher,
		logger:      logger,
		conns:       make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	// requests outlive ctx so they can finish during Shutdown
	base := context.WithoutCancel(ctx)

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.stats.accepted.Add(1)
		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConn(base, conn)
	}
}

// Addr is the bound address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Served counts connections that reached the dispatcher.
func (s *Server) Served() int64 { return s.served.Load() }

// Shutdown stops accepting and waits for in-flight connections. When ctx
// expires first, the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)

	bc := newBufferedConn(conn)
	res := newConnResponse(bc)
	defer func() {
		if !res.hijacked {
			_ = conn.Close()
		}
	}()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	raw, err := http.ReadRequest(bc.reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.stats.timeouts.Add(1)
			} else {
				s.stats.badRequests.Add(1)
			}
			s.logger.Debug("read request failed",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			res.proto = "HTTP/1.0"
			res.SetStatus(http.StatusBadRequest)
			_ = res.finish()
		}
		return
	}
	raw.RemoteAddr = conn.RemoteAddr().String()
	if raw.ProtoMajor == 1 && raw.ProtoMinor == 0 {
		res.proto = "HTTP/1.0"
	}
	_ = conn.SetReadDeadline(time.Time{})

	req := web.NewRequest(ctx, raw)
	s.served.Add(1)
	s.dispatcher.Dispatch(req, res)

	if res.hijacked {
		s.stats.hijacked.Add(1)
	} else {
		s.drainBody(conn, raw.Body)
	}
	if err := res.finish(); err != nil {
		s.logger.Debug("write response failed",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}

// maxDrain bounds how much of an unread request body is consumed before the
// connection is closed; closing with unread data resets the connection.
const maxDrain = 256 << 10

func (s *Server) drainBody(conn net.Conn, body io.ReadCloser) {
	if body == nil || body == http.NoBody {
		return
	}
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	_, _ = io.CopyN(io.Discard, body, maxDrain)
}
