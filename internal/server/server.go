// Package server owns the sockets: the accept loop, one handler goroutine per
// connection, and the framed request/reply exchange with the dispatch
// pipeline. No store lock is ever held here.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nukekv/nukekv/internal/handler"
	"github.com/nukekv/nukekv/internal/metrics"
	"github.com/nukekv/nukekv/internal/parser"
	"github.com/nukekv/nukekv/internal/protocol"
	"github.com/nukekv/nukekv/internal/store"
	"github.com/nukekv/nukekv/internal/worker"
)

// Server accepts nuke-wire connections and shuttles commands through the
// worker pool.
type Server struct {
	listener net.Listener
	pool     *worker.Pool
	store    *store.Store

	maxPayload uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	log zerolog.Logger
}

// New wraps an already-bound listener. Binding stays in the caller so a bind
// failure can exit with the right code before anything else starts.
func New(ln net.Listener, pool *worker.Pool, st *store.Store, maxPayload uint64, logger zerolog.Logger) *Server {
	return &Server{
		listener:   ln,
		pool:       pool,
		store:      st,
		maxPayload: maxPayload,
		conns:      make(map[net.Conn]struct{}),
		log:        logger.With().Str("component", "tcp").Logger(),
	}
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	log := s.log.With().Str("conn", connID).Str("remote", conn.RemoteAddr().String()).Logger()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	if s.store.Debug() {
		log.Debug().Msg("connection opened")
	}

	for {
		line, err := protocol.ReadMessage(conn, s.maxPayload)
		if err != nil {
			// Includes oversized headers from scanners: close silently, no
			// reply on the wire.
			if errors.Is(err, protocol.ErrPayloadTooLarge) && s.store.Debug() {
				log.Debug().Msg("malformed header exceeded payload limit, closing")
			}
			return
		}

		// The suffix follows the debug setting in force when the command
		// arrived, so a DEBUG toggle does not decorate its own reply.
		debug := s.store.Debug()
		start := time.Now()
		result := s.execute(line)

		text := result.Text
		if debug && !strings.HasPrefix(text, "Stress Test") {
			text += " (" + handler.FormatDuration(time.Since(start)) + ")"
		}
		if result.Status >= 400 {
			metrics.ErrorsTotal.Inc()
		}

		if err := protocol.WriteMessage(conn, text); err != nil {
			return
		}
		if result.quit {
			return
		}
	}
}

type outcome struct {
	worker.Result
	quit bool
}

// execute implements the per-command fast paths (empty line, QUIT, PING) and
// hands everything else to the pool.
func (s *Server) execute(line string) outcome {
	args := parser.Parse(line)
	if len(args) == 0 {
		return outcome{Result: worker.Result{Status: 400, Text: "-ERR empty command"}}
	}

	command := strings.ToUpper(args[0])
	args = args[1:]
	metrics.CommandsTotal.WithLabelValues(command).Inc()

	switch command {
	case "QUIT":
		return outcome{Result: worker.Result{Status: 200, Text: "+OK Bye"}, quit: true}
	case "PING":
		return outcome{Result: worker.Result{Status: 200, Text: "+PONG"}}
	}

	return outcome{Result: <-s.pool.Dispatch(command, args)}
}

// Shutdown closes the accept loop and waits for connection handlers to
// finish, forcing remaining sockets closed when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

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
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
