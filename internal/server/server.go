// Package server is the TCP control endpoint: newline-delimited JSON in,
// OK/ERROR lines and button events out.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// MaxLineSize bounds one incoming message.
	MaxLineSize  = 1 << 20
	writeTimeout = 5 * time.Second
	logPreview   = 50
)

// Handler runs one line and returns the reply lines, without newlines.
// control.Handler satisfies it.
type Handler interface {
	Handle(line []byte) [][]byte
}

// ErrServerClosed is returned by Listen and Serve once the server has shut
// down.
var ErrServerClosed = errors.New("server closed")

type client struct {
	id   string
	conn net.Conn
	wmu  sync.Mutex
}

// write sends each line followed by a newline. Lines from concurrent
// writers never interleave.
func (c *client) write(lines ...[]byte) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(buf.Bytes())
	return err
}

// Server accepts control clients.
type Server struct {
	addr    string
	handler Handler
	log     *log.Logger

	mu      sync.RWMutex
	ln      net.Listener
	clients map[string]*client
	closed  bool

	wg sync.WaitGroup
}

// New returns a server for addr. Nothing is bound until Listen or Serve.
func New(addr string, h Handler, logger *log.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: h,
		log:     logger,
		clients: make(map[string]*client),
	}
}

// Listen binds the listen address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts clients until ctx is cancelled, then closes the listener
// and every connection and waits for their goroutines.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()
	s.log.Info("control server listening", "addr", ln.Addr())

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				s.log.Info("control server stopped")
				return nil
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		c := &client{id: uuid.NewString(), conn: conn}
		if !s.register(c) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.serveClient(c)
	}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ln != nil {
		s.ln.Close()
	}
	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) serveClient(c *client) {
	defer s.wg.Done()
	logger := s.log.With("client", c.id, "remote", c.conn.RemoteAddr())
	logger.Info("client connected")
	defer func() {
		s.unregister(c)
		c.conn.Close()
		logger.Info("client disconnected")
	}()

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		logger.Debug("received", "msg", preview(line))
		if err := c.write(s.handler.Handle(line)...); err != nil {
			logger.Warn("failed to reply", "err", err)
			return
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("read failed", "err", err)
	}
}

// Broadcast sends line, newline-terminated, to every connected client.
// A failing client is logged and skipped.
func (s *Server) Broadcast(line []byte) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	s.log.Debug("broadcast", "msg", preview(line), "clients", len(clients))
	for _, c := range clients {
		if err := c.write(line); err != nil {
			s.log.Warn("failed to send to client", "client", c.id, "err", err)
		}
	}
}

// ClientCount is the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// preview shortens long messages for the log to their first and last 50
// bytes.
func preview(b []byte) string {
	if len(b) <= 2*logPreview {
		return string(b)
	}
	return string(b[:logPreview]) + "..." + string(b[len(b)-logPreview:])
}
