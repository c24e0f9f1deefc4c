// Package server implements the networked REPL server: a TCP listener
// accepting framed evaluation requests, a session store, per-request
// workers with timeout and interrupt support, and the evaluator driver
// bridging to a host language runtime.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/replnet/replnet"
	"github.com/replnet/replnet/client"
	"github.com/replnet/replnet/internal/collection"
	"github.com/replnet/replnet/runtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

// DefaultAckFormat is the one-liner evaluated on the ack server to
// deliver this server's bound port.
const DefaultAckFormat = "(deliver-ack %d)"

// Server hosts one listener plus the process-wide request and session
// registries scoped to it. A single process may run several Servers.
type Server struct {
	rt        runtime.Runtime
	log       *logrus.Logger
	listener  net.Listener
	pending   *collection.SyncMap[string, *pendingRequest]
	sessions  *Store
	conns     *collection.SyncMap[*conn, struct{}]
	ackCh     chan int
	ackFormat string
	maxConns  int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Start binds a TCP listener on port (0 picks an ephemeral port) and
// begins accepting connections. When ackPort is positive, a
// short-lived client connects to localhost:ackPort and evaluates the
// ack one-liner carrying the bound port.
func Start(ctx context.Context, rt runtime.Runtime, port, ackPort int, options ...Option) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		rt:        rt,
		log:       logrus.StandardLogger(),
		pending:   collection.NewSyncMap[string, *pendingRequest](),
		sessions:  NewStore(),
		conns:     collection.NewSyncMap[*conn, struct{}](),
		ackCh:     make(chan int, 1),
		ackFormat: DefaultAckFormat,
	}
	for _, option := range options {
		option(s)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind port %d: %w", port, err)
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.acceptLoop()
	if ackPort > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sendAck(ackPort)
		}()
	}
	s.log.WithField("addr", s.Addr()).Info("repl server listening")
	return s, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Sessions returns the retained-session store.
func (s *Server) Sessions() *Store { return s.sessions }

// Stop closes the listener and every live connection, cancels in-
// flight evaluations and waits for workers to unwind.
func (s *Server) Stop() error {
	s.cancel()
	err := s.listener.Close()
	s.conns.Range(func(c *conn, _ struct{}) bool {
		c.close()
		return true
	})
	s.wg.Wait()
	return err
}

// WaitForAck blocks until an evaluated deliver-ack hands this server a
// port, or the timeout elapses.
func (s *Server) WaitForAck(timeout time.Duration) (int, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case port := <-s.ackCh:
		return port, true
	case <-timer.C:
		return 0, false
	}
}

func (s *Server) deliverAck(port int) {
	select {
	case s.ackCh <- port:
	default:
	}
}

// acceptLoop supervises the accept loop: I/O errors on a closed
// listener terminate it silently, anything else is logged and the loop
// restarts.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		if s.acceptConnections() {
			return
		}
	}
}

func (s *Server) acceptConnections() (done bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("accept loop failure, restarting: %v", r)
		}
	}()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return true
			}
			s.log.WithError(err).Error("accept failed")
			continue
		}
		c := newConn(s, nc)
		s.conns.Put(c, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Delete(c)
			c.serve()
		}()
	}
}

func (s *Server) sendAck(ackPort int) {
	cl, err := client.Connect(replnet.DefaultHost, ackPort)
	if err != nil {
		s.log.WithError(err).Error("ack connection failed")
		return
	}
	defer func() { _ = cl.Close() }()
	responses, err := cl.Send(fmt.Sprintf(s.ackFormat, s.Port()))
	if err != nil {
		s.log.WithError(err).Error("ack request failed")
		return
	}
	responses.Drain(10 * time.Second)
}
