package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"

	"github.com/google/uuid"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

var errLineTooLong = errors.New("request line too long")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second

	// maxDrainBytes bounds how much of an over-long request is discarded
	// before the error reply is written.
	maxDrainBytes = 1 << 20
)

// LineHandler turns one request line into one encoded reply line.
// *dispatch.Dispatcher implements it.
type LineHandler interface {
	HandleLine(ctx context.Context, raw string) []byte
}

// ConnectionServer accepts line protocol connections.
type ConnectionServer struct {
	config  config.ServerConfig
	maxLine int
	handler LineHandler
	metrics *metrics.Collector
	logger  *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	active    map[net.Conn]struct{}
	isRunning bool
	closing   bool

	baseCtx context.Context
	cancel  context.CancelFunc

	conns        sync.WaitGroup
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewConnectionServer creates a server that hands every request line to h.
// Lines longer than limits.MaxRequestBytes are answered with BadRequest.
func NewConnectionServer(cfg config.ServerConfig, limits config.LimitsConfig, h LineHandler, collector *metrics.Collector, logger *slog.Logger) *ConnectionServer {
	if logger == nil {
		logger = slog.Default()
	}
	maxLine := limits.MaxRequestBytes
	if maxLine <= 0 {
		maxLine = config.DefaultMaxRequestBytes
	}
	return &ConnectionServer{
		config:  cfg,
		maxLine: maxLine,
		handler: h,
		metrics: collector,
		logger:  logger,
		active:  make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *ConnectionServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called. Cancelling ctx triggers a graceful shutdown. It returns
// ErrServerClosed after a shutdown.
func (s *ConnectionServer) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.isRunning = true
	s.listener = ln
	// Dispatches outlive ctx until the shutdown timeout expires.
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.logger.Info("starting connection server", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("context cancelled, initiating shutdown")
		_ = s.Shutdown(context.Background())
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				<-s.done
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed, retrying",
				"error", err,
				"retry_in", backoff.String(),
			)
			s.metrics.RecordConnectionError("accept")

			select {
			case <-time.After(backoff):
			case <-s.done:
				return ErrServerClosed
			}
			continue
		}
		backoff = 0

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting, waits for in-flight connections until ctx ends
// or the configured shutdown timeout passes, then cancels the remaining
// dispatches and closes their connections.
func (s *ConnectionServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		ln := s.listener
		running := s.isRunning
		s.mu.Unlock()

		defer close(s.done)
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		if ln != nil {
			_ = ln.Close()
		}

		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		drained := make(chan struct{})
		go func() {
			s.conns.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			s.logger.Warn("shutdown timeout exceeded, aborting in-flight connections")
			shutdownErr = fmt.Errorf("connection server shutdown: %w", ctx.Err())
			s.abortActive()
			<-drained
		}

		s.cancel()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("connection server stopped")
	})

	return shutdownErr
}

// Addr returns the listener address, or nil before Serve.
func (s *ConnectionServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is serving.
func (s *ConnectionServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *ConnectionServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *ConnectionServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active[conn] = struct{}{}
	s.conns.Add(1)
	return true
}

func (s *ConnectionServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
	s.conns.Done()
}

func (s *ConnectionServer) abortActive() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.active {
		_ = conn.Close()
	}
}

// handleConn serves exactly one request on conn.
func (s *ConnectionServer) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	s.metrics.ConnectionOpened("socket")
	defer s.metrics.ConnectionClosed("socket")

	connID := uuid.NewString()
	ctx := logging.WithConnID(s.baseCtx, connID)
	logger := s.logger.With("remote_addr", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while serving connection",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			s.writeReply(ctx, logger, conn, dispatch.EncodeReply(dispatch.Failure(dispatch.InternalError), dispatch.FramingPlain))
		}
	}()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	reader := bufio.NewReader(conn)
	line, err := readLine(reader, s.maxLine)
	switch {
	case err == nil:
	case errors.Is(err, errLineTooLong):
		logger.WarnContext(ctx, "request line too long", "limit_bytes", s.maxLine)
		if !strings.HasSuffix(line, "\n") {
			drainLine(reader)
		}
		reply := dispatch.Failure(dispatch.BadRequest)
		s.metrics.RecordDispatch(reply.Kind.String(), 0, 0)
		s.writeReply(ctx, logger, conn, dispatch.EncodeReply(reply, guessFraming(line)))
		return
	default:
		logger.WarnContext(ctx, "failed to read request", "error", err)
		s.metrics.RecordConnectionError("read")
		return
	}

	reply := s.handler.HandleLine(ctx, line)
	s.writeReply(ctx, logger, conn, reply)
}

func (s *ConnectionServer) writeReply(ctx context.Context, logger *slog.Logger, conn net.Conn, reply []byte) {
	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := conn.Write(reply); err != nil {
		logger.WarnContext(ctx, "failed to write reply", "error", err)
		s.metrics.RecordConnectionError("write")
	}
}

// readLine reads one line of at most limit bytes, excluding the line
// terminator. A connection closed after a partial line yields that line.
// On errLineTooLong the returned string holds the bytes read so far,
// ending in '\n' when the terminator was already consumed.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var b strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		b.Write(chunk)

		bound := limit
		if err == nil {
			bound = limit + 1
		}
		if b.Len() > bound {
			return b.String(), errLineTooLong
		}

		switch {
		case err == nil:
			return trimEOL(b.String()), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return b.String(), nil
		default:
			return "", err
		}
	}
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// drainLine discards the rest of an over-long line so closing the
// connection does not reset it before the client reads the reply.
func drainLine(r *bufio.Reader) {
	var n int
	for n < maxDrainBytes {
		chunk, err := r.ReadSlice('\n')
		n += len(chunk)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}

func guessFraming(partial string) dispatch.Framing {
	if strings.HasPrefix(strings.TrimSpace(partial), "{") {
		return dispatch.FramingJSON
	}
	return dispatch.FramingPlain
}
