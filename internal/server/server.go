// Package server runs the loopback TCP query server: it loads the persisted
// index, accepts connections, and answers one query per connection.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
)

// State is the server lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateLoading
	StateListening
	StateAccepting
	StateServing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateServing:
		return "serving"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Loader supplies the snapshot to serve. *segment.Store satisfies it.
type Loader interface {
	Load(ctx context.Context) (*index.Snapshot, error)
}

// Server answers term queries over TCP. Each connection carries one request
// and one response.
type Server struct {
	cfg     config.ServerConfig
	loader  Loader
	exec    *executor.Executor
	cache   *cache.QueryCache
	events  *analytics.Collector
	metrics *metrics.Metrics
	logger  *slog.Logger

	// mu guards state, listener and active.
	mu       sync.Mutex
	state    State
	listener net.Listener
	active   int

	wg     sync.WaitGroup
	connID atomic.Uint64
	ready  chan struct{}
}

// New creates a Server. qc, events and m may be nil.
func New(cfg config.ServerConfig, loader Loader, exec *executor.Executor, qc *cache.QueryCache, events *analytics.Collector, m *metrics.Metrics) *Server {
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = config.DefaultMaxRequestBytes
	}
	return &Server{
		cfg:     cfg,
		loader:  loader,
		exec:    exec,
		cache:   qc,
		events:  events,
		metrics: m,
		logger:  slog.Default().With("component", "query-server"),
		ready:   make(chan struct{}),
	}
}

// ListenAndServe loads the index, binds the listener and serves until ctx is
// cancelled. A load or bind failure returns before anything is served.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.setState(StateLoading)
	s.logger.Info("loading index files")
	snap, err := s.loader.Load(ctx)
	if err != nil {
		s.metrics.SnapshotLoaded(0, 0, err)
		s.setState(StateStopped)
		return fmt.Errorf("loading index: %w", err)
	}
	version := s.exec.Replace(snap)
	s.metrics.SnapshotLoaded(snap.TermCount(), snap.DocCount(), nil)
	s.logger.Info("index loaded", "terms", snap.TermCount(), "documents", snap.DocCount(), "version", version)

	ln, err := s.listen(ctx)
	if err != nil {
		s.exec.Release()
		s.setState(StateStopped)
		return err
	}
	close(s.ready)
	s.logger.Info("server listening", "addr", ln.Addr().String())

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-stopped:
		}
	}()

	s.acceptLoop(ctx, ln)
	s.drain()
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// listen binds under mu so a concurrent stop cannot miss the listener.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.state = StateListening
	return ln, nil
}

func (s *Server) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopping || s.state == StateStopped {
		return
	}
	s.state = StateStopping
	if s.listener != nil {
		s.listener.Close()
	}
	s.logger.Info("server stopping")
}

func (s *Server) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopping
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	s.setState(StateAccepting)
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.metrics.RequestError("accept")
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Error("accept error", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		s.connOpened()
		s.wg.Add(1)
		go s.handleConn(ctx, conn, s.connID.Add(1))
	}
}

// drain waits up to ShutdownTimeout for in-flight connections, then releases
// the snapshot. Connections still running after the deadline are abandoned.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("shutdown timeout, abandoning in-flight connections", "timeout", timeout)
	}
	s.exec.Release()
	s.setState(StateStopped)
	s.logger.Info("server stopped")
}

func (s *Server) connOpened() {
	s.metrics.ConnOpened()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
	if s.state == StateAccepting {
		s.state = StateServing
	}
}

func (s *Server) connClosed() {
	s.metrics.ConnClosed()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 && s.state == StateServing {
		s.state = StateAccepting
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, id uint64) {
	defer s.wg.Done()
	defer s.connClosed()
	defer conn.Close()

	// In-flight requests finish even after shutdown begins.
	ctx = logger.WithConnID(context.WithoutCancel(ctx), id)
	log := logger.FromContext(ctx).With("component", "query-server", "remote", conn.RemoteAddr().String())
	start := time.Now()

	var deadline time.Time
	if s.cfg.ReadTimeout > 0 {
		deadline = start.Add(s.cfg.ReadTimeout)
		conn.SetReadDeadline(deadline)
	}
	idle := s.cfg.RequestIdle
	if idle == 0 {
		idle = config.DefaultRequestIdle
	}
	payload, err := readRequest(conn, s.cfg.MaxRequestBytes, idle, deadline)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRequestTooLarge) {
			s.metrics.RequestError("read")
			log.Warn("read failed", "error", err)
			return
		}
		s.metrics.RequestError("too_large")
		log.Warn("request rejected", "error", err)
		s.reply(conn, log, func(buf *bytes.Buffer) error { return encodeError(buf, err) })
		return
	}

	term, _ := ExtractQuery(payload)
	if term == "" {
		s.metrics.ObserveQuery("invalid", 0, time.Since(start).Seconds())
		log.Debug("invalid query", "payload_bytes", len(payload))
		s.reply(conn, log, func(buf *bytes.Buffer) error {
			return encodeError(buf, apperrors.ErrInvalidQuery)
		})
		return
	}

	view := s.exec.View()
	paths, hit := s.cache.GetOrCompute(ctx, view.Version(), term, func() []string {
		return view.Search(term)
	})
	resp := NewResponse(term, paths)
	s.reply(conn, log, func(buf *bytes.Buffer) error { return Encode(buf, resp) })

	elapsed := time.Since(start)
	resultType := "hit"
	if resp.Count == 0 {
		resultType = "zero_result"
	}
	s.metrics.ObserveQuery(resultType, resp.Count, elapsed.Seconds())
	s.events.Track(analytics.NewQueryEvent(term, resp.Count, elapsed, hit, view.Version()))
	log.Debug("query served", "term", term, "count", resp.Count, "cache_hit", hit, "elapsed", elapsed)
}

// reply encodes the whole response before writing so the client gets it in
// one write.
func (s *Server) reply(conn net.Conn, log *slog.Logger, encode func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		s.metrics.RequestError("encode")
		log.Error("encoding response", "error", err)
		return
	}
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		s.metrics.RequestError("write")
		log.Warn("write failed", "error", err)
	}
}
