package server

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/replnet/replnet"
	"github.com/sirupsen/logrus"
)

// conn serves one accepted TCP connection: it owns the decoder, the
// serialized encoder and the session cursor, and loops decoding
// inbound messages until the stream breaks.
type conn struct {
	server    *Server
	nc        net.Conn
	dec       *replnet.Decoder
	enc       *replnet.Encoder
	session   *Session
	log       *logrus.Entry
	closeOnce sync.Once
}

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		server:  s,
		nc:      nc,
		dec:     replnet.NewDecoder(nc),
		enc:     replnet.NewEncoder(nc),
		session: NewSession(s.rt.DefaultNamespace()),
		log:     s.log.WithField("remote", nc.RemoteAddr().String()),
	}
}

// serve runs the inbound decode loop. It returns to the loop right
// after dispatching a request; it never waits for workers.
func (c *conn) serve() {
	defer c.close()
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("connection failure: %v", r)
		}
	}()
	c.log.Debug("connection open")
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				c.log.WithError(err).Debug("closing connection")
			}
			return
		}
		if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			c.log.WithField("message", msg.String()).Debug("received")
		}
		c.handle(msg)
	}
}

func (c *conn) handle(msg replnet.Message) {
	// A session-id re-points the connection's session cursor for this
	// and subsequent requests, when the store knows the id.
	if sid := msg.Str(replnet.KeySessionID); sid != "" {
		if session, ok := c.server.sessions.Lookup(sid); ok {
			c.session = session
		}
	}
	if msg.Str(replnet.KeyCode) == "" {
		response := replnet.Message{
			replnet.KeyStatus: replnet.StatusError,
			replnet.KeyError:  "Received message with no code.",
		}
		if id := msg.ID(); id != "" {
			response[replnet.KeyID] = id
		}
		c.write(response, nil)
		return
	}
	c.server.dispatch(c, msg)
}

// write serializes one response on the wire. A write failure on an
// already cancelled or timed-out request is suppressed; otherwise it
// is logged. Either way the connection closes.
func (c *conn) write(m replnet.Message, p *pendingRequest) {
	if err := c.enc.Encode(m); err != nil {
		if (p == nil || !p.interrupted.Load()) && c.server.ctx.Err() == nil {
			c.log.WithError(err).Error("failed to write response")
		}
		c.close()
		return
	}
	if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.log.WithField("message", m.String()).Debug("sent")
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		_ = c.nc.Close()
		c.log.Debug("connection closed")
	})
}
