package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/towerops-app/poolserver/pool"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// listen binds cfg.ListenAddr, applying the optional SO_REUSEPORT and
// open-connection cap.
func listen(ctx context.Context, cfg *Config) (net.Listener, error) {
	var lc net.ListenConfig
	if cfg.ReusePort {
		lc.Control = reusePortControl
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	return ln, nil
}

// server accepts connections and hands each one to the pool as a job.
type server struct {
	pool    *pool.ThreadPool
	pages   *pageHandler
	log     *slog.Logger
	limiter *rate.Limiter // nil when accepts are not throttled
}

func newServer(cfg *Config, p *pool.ThreadPool, log *slog.Logger) *server {
	s := &server{
		pool:  p,
		pages: newPageHandler(cfg),
		log:   log,
	}
	if cfg.AcceptRate > 0 {
		burst := max(1, int(math.Ceil(cfg.AcceptRate)))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return s
}

// serve runs the accept loop until ctx is cancelled or ln fails for good.
// The listener is closed on return. It does not shut the pool down.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer func() {
		stop()
		_ = ln.Close()
	}()

	s.log.Info("listening", "addr", ln.Addr().String(), "workers", s.pool.Size())

	retryDelay := acceptRetryMin
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("accept", "error", err, "retry_in", retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			retryDelay = min(retryDelay*2, acceptRetryMax)
			continue
		}
		retryDelay = acceptRetryMin

		s.dispatch(conn)
	}
}

// dispatch submits conn to the pool. A rejected connection is closed at once.
func (s *server) dispatch(conn net.Conn) {
	log := s.log.With("conn_id", uuid.NewString(), "remote", conn.RemoteAddr().String())
	err := s.pool.Submit(func() { s.pages.serve(conn, log) })
	if err != nil {
		log.Warn("connection rejected", "error", err)
		_ = conn.Close()
	}
}
