// Package server accepts RTSP client connections and parses their requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tevino/abool"
	"golang.org/x/net/netutil"

	"firestige.xyz/rtspd/internal/config"
	"firestige.xyz/rtspd/internal/log"
	"firestige.xyz/rtspd/internal/metrics"
	"firestige.xyz/rtspd/internal/sink"
	"firestige.xyz/rtspd/internal/stream"
	"firestige.xyz/rtspd/pkg/buffer"
	"firestige.xyz/rtspd/pkg/rtsp"
)

// Server runs one parser per TCP connection and reports completed requests to a sink.
type Server struct {
	cfg    config.ServerConfig
	limits rtsp.Limits
	sink   sink.Sink

	listener net.Listener
	stopped  *abool.AtomicBool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New creates a server. Nothing is bound until Listen or Start.
func New(cfg config.ServerConfig, limits rtsp.Limits, s sink.Sink) *Server {
	if s == nil {
		s = sink.None{}
	}
	return &Server{
		cfg:     cfg,
		limits:  limits,
		sink:    s,
		stopped: abool.New(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and serves. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on a bound listener until ctx is cancelled,
// then closes every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"addr":            s.listener.Addr().String(),
		"max_connections": s.cfg.MaxConnections,
	}).Info("rtsp server started")

	go s.acceptLoop(ctx)

	<-ctx.Done()
	log.GetLogger().WithField("reason", ctx.Err()).Info("rtsp server stopping")

	return s.Stop()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped.IsSet() {
				return
			}
			log.GetLogger().WithError(err).Error("failed to accept connection")
			if errors.Is(err, net.ErrClosed) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		if s.stopped.IsSet() {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		metrics.ConnectionsActive.Dec()
	}()
	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()

	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger := log.GetLogger().WithFields(map[string]interface{}{"conn": id, "remote": remote})
	logger.Debug("connection established")

	p := stream.New(stream.Options{
		ID:       id,
		Remote:   remote,
		Source:   metrics.SourceServer,
		Limits:   s.limits,
		MaxBytes: s.cfg.MaxBufferBytes,
		Sink:     s.sink,
	})

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := p.Buffer().ReadFrom(conn)
		if n > 0 {
			if perr := p.Process(ctx); perr != nil {
				logger.WithError(perr).Warn("closing connection on parse error")
				return
			}
		}
		if err != nil {
			s.logReadError(logger, err, p)
			return
		}
	}
}

func (s *Server) logReadError(logger log.Logger, err error, p *stream.Processor) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		if p.Pending() {
			logger.WithField("buffered", p.Buffer().Len()).Info("connection closed mid-request")
		} else {
			logger.WithField("requests", p.Parsed()).Debug("connection closed")
		}
	case errors.Is(err, buffer.ErrBufferFull):
		metrics.ParseErrorsTotal.WithLabelValues(metrics.SourceServer, stream.Reason(err)).Inc()
		logger.WithField("limit", s.cfg.MaxBufferBytes).Warn("buffer limit reached without a complete request")
	case errors.As(err, &ne) && ne.Timeout():
		logger.WithField("timeout", s.cfg.ReadTimeout).Info("connection idle, closing")
	case s.stopped.IsSet():
	default:
		logger.WithError(err).Warn("connection read failed")
	}
}

// Stop closes the listener and all connections, then waits for handlers.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped.IsSet() {
		s.mu.Unlock()
		return nil
	}
	s.stopped.Set()
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	log.GetLogger().Info("rtsp server stopped")
	return nil
}
