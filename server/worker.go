package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/replnet/replnet"
)

// pendingRequest tracks one in-flight evaluation: its interrupt flag,
// the worker's cancellation, and the completion signal the supervisor
// awaits. emitMu serializes driver emissions with the terminal write;
// sealed marks that the terminal has been written and nothing more may
// follow for this id.
type pendingRequest struct {
	id          string
	deadline    time.Time
	interrupted atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
	interrupt   chan struct{}
	once        sync.Once
	failure     error
	emitMu      sync.Mutex
	sealed      bool
}

// Interrupt is best-effort: it sets the flag that suppresses further
// emissions and cancels the worker's context. A worker stuck in a
// tight loop with no cancellation check may stay alive; its responses
// are dropped either way.
func (p *pendingRequest) Interrupt() {
	p.interrupted.Store(true)
	p.cancel()
	p.once.Do(func() { close(p.interrupt) })
}

// Interrupt cancels the pending request with the given id and reports
// whether it was in flight.
func (s *Server) Interrupt(id string) bool {
	p, ok := s.pending.Get(id)
	if !ok {
		return false
	}
	p.Interrupt()
	return true
}

// dispatch schedules one evaluation request from conn c: a worker
// goroutine runs the driver and a supervisor goroutine awaits it up to
// the request timeout, emitting exactly one terminal status. It
// returns the request id without waiting.
func (s *Server) dispatch(c *conn, request replnet.Message) string {
	id := request.ID()
	if id == "" {
		id = uuid.NewString()
	}
	timeout := request.Timeout()
	evalCtx, cancel := context.WithCancel(s.ctx)
	p := &pendingRequest{
		id:        id,
		deadline:  time.Now().Add(timeout),
		cancel:    cancel,
		done:      make(chan struct{}),
		interrupt: make(chan struct{}),
	}
	s.pending.Put(id, p)

	// Emissions from the driver and the sinks are suppressed once the
	// request is interrupted, timed out or sealed by its terminal
	// status. Checking and writing under emitMu keeps any straggler
	// emission from serializing after the terminal: the supervisor
	// seals the request under the same lock.
	emit := func(m replnet.Message) {
		p.emitMu.Lock()
		defer p.emitMu.Unlock()
		if p.sealed || p.interrupted.Load() {
			return
		}
		response := m.Clone()
		response[replnet.KeyID] = id
		c.write(response, p)
	}
	out := NewOutStream(replnet.KeyOut, emit)
	errOut := NewOutStream(replnet.KeyErr, emit)
	session := c.session
	hooks := Hooks{
		Interrupt:      s.Interrupt,
		DeliverAck:     s.deliverAck,
		RetainSession:  func() string { return s.sessions.Retain(session) },
		ReleaseSession: func() bool { return s.sessions.Release(session) },
	}
	driver := NewDriver(s.rt, session, out, errOut, &p.interrupted, emit, hooks)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				p.failure = fmt.Errorf("evaluation panic: %v", r)
			}
		}()
		driver.Run(evalCtx, request)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.await(c, p, timeout)
	}()
	return id
}

// await emits the single terminal status for a pending request. The
// pending entry is removed before the terminal write so a late
// interrupt cannot race a done already on the wire, and the request is
// sealed under emitMu so no driver emission can follow the terminal.
func (s *Server) await(c *conn, p *pendingRequest, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	terminal := replnet.Message{replnet.KeyID: p.id}
	select {
	case <-p.done:
		s.pending.Delete(p.id)
		switch {
		case p.interrupted.Load():
			terminal[replnet.KeyStatus] = replnet.StatusInterrupted
		case p.failure != nil:
			terminal[replnet.KeyStatus] = replnet.StatusServerFailure
			terminal[replnet.KeyError] = p.failure.Error()
			c.log.WithError(p.failure).Error("request failed")
		default:
			terminal[replnet.KeyStatus] = replnet.StatusDone
		}
	case <-p.interrupt:
		s.pending.Delete(p.id)
		terminal[replnet.KeyStatus] = replnet.StatusInterrupted
	case <-timer.C:
		p.Interrupt()
		s.pending.Delete(p.id)
		terminal[replnet.KeyStatus] = replnet.StatusTimeout
	}
	p.emitMu.Lock()
	p.sealed = true
	c.write(terminal, p)
	p.emitMu.Unlock()
}
