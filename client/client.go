// Package client implements the REPL client: it connects over TCP,
// sends framed evaluation requests and demultiplexes the response
// stream back to per-request handles by id. The outstanding-request
// registry holds weak references, so a handle the caller dropped stops
// pinning its queue and later responses for that id are discarded.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	goruntime "runtime"
	"strconv"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/replnet/replnet"
	"github.com/replnet/replnet/internal/collection"
	"github.com/sirupsen/logrus"
)

// DefaultInterruptFormat is the one-liner sent to interrupt a request;
// the %q verb receives the request id.
const DefaultInterruptFormat = "(interrupt! %q)"

// outstanding is the per-request record the reader routes responses
// to. The registry only holds it weakly; the Responses handle returned
// by Send carries the strong reference.
type outstanding struct {
	id    string
	queue *collection.Queue[replnet.Message]
}

// Client is one connection to a REPL server.
type Client struct {
	nc              net.Conn
	enc             *replnet.Encoder
	dec             *replnet.Decoder
	requests        *collection.SyncMap[string, weak.Pointer[outstanding]]
	log             *logrus.Logger
	done            chan struct{}
	closeOnce       sync.Once
	interruptFormat string
}

// Connect establishes the socket and starts the dedicated reader
// goroutine. An empty host means localhost.
func Connect(host string, port int, options ...Option) (*Client, error) {
	if host == "" {
		host = replnet.DefaultHost
	}
	nc, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}
	c := &Client{
		nc:              nc,
		enc:             replnet.NewEncoder(nc),
		dec:             replnet.NewDecoder(nc),
		requests:        collection.NewSyncMap[string, weak.Pointer[outstanding]](),
		log:             logrus.StandardLogger(),
		done:            make(chan struct{}),
		interruptFormat: DefaultInterruptFormat,
	}
	for _, option := range options {
		option(c)
	}
	go c.readLoop()
	return c, nil
}

// Send writes one evaluation request and returns the handle yielding
// its responses. Dropping the handle without reading makes the
// registry entry reclaimable; responses arriving afterwards are
// discarded.
func (c *Client) Send(code string, options ...RequestOption) (*Responses, error) {
	request := replnet.Message{replnet.KeyID: uuid.NewString(), replnet.KeyCode: code}
	for _, option := range options {
		option(request)
	}
	id := request.ID()
	record := &outstanding{id: id, queue: collection.NewQueue[replnet.Message]()}
	c.requests.Put(id, weak.Make(record))
	goruntime.AddCleanup(record, func(key string) { c.requests.Delete(key) }, id)
	if err := c.enc.Encode(request); err != nil {
		c.requests.Delete(id)
		return nil, fmt.Errorf("failed to send request %s: %w", id, err)
	}
	if c.log.IsLevelEnabled(logrus.DebugLevel) {
		c.log.WithField("message", request.String()).Debug("sent")
	}
	return &Responses{id: id, client: c, record: record}, nil
}

// Outstanding returns the number of request ids the response
// demultiplexer still tracks. Entries for abandoned handles disappear
// once the collector reclaims them.
func (c *Client) Outstanding() int { return c.requests.Size() }

// Close shuts the socket down; the reader goroutine unwinds and wakes
// any blocked handle.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
	})
	return err
}

// readLoop decodes responses and routes each to the outstanding record
// for its id, if that record is still alive.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				c.log.WithError(err).Debug("reader stopped")
			}
			break
		}
		if c.log.IsLevelEnabled(logrus.DebugLevel) {
			c.log.WithField("message", msg.String()).Debug("received")
		}
		id := msg.ID()
		if id == "" {
			continue
		}
		pointer, ok := c.requests.Get(id)
		if !ok {
			continue
		}
		record := pointer.Value()
		if record == nil {
			// the caller dropped their handle; stop tracking the id
			c.requests.Delete(id)
			continue
		}
		record.queue.Push(msg)
	}
	c.requests.Range(func(_ string, pointer weak.Pointer[outstanding]) bool {
		if record := pointer.Value(); record != nil {
			record.queue.Close()
		}
		return true
	})
}
