package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// ErrClosed is returned for calls made after the connection stopped serving.
var ErrClosed = errors.New("jsonrpc connection closed")

// Handler receives inbound requests and notifications. Handle runs on the read
// goroutine, so implementations must hand long work off elsewhere.
type Handler interface {
	Handle(ctx context.Context, conn *Conn, msg protocol.Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *Conn, msg protocol.Message)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, conn *Conn, msg protocol.Message) {
	f(ctx, conn, msg)
}

// Conn is a bidirectional JSON-RPC connection. Writes are serialized so it is
// safe for concurrent use by many reporters.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	handler Handler
	logger  *zap.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan protocol.Message
	closed  bool
}

// NewConn wraps the given stream halves. handler may be nil when the peer
// never sends requests.
func NewConn(r io.Reader, w io.Writer, handler Handler, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan protocol.Message),
	}
}

// Notify sends a one-way notification.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify %s: %w", method, err)
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("notify %s: %w", method, err)
	}
	return c.send(msg)
}

// Call sends a request and returns a channel that receives exactly one
// response. It does not wait for the response.
func (c *Conn) Call(ctx context.Context, method string, params any) (<-chan protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	id := c.nextID.Add(1)
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	key := strconv.FormatInt(id, 10)
	ch := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[key] = ch
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return ch, nil
}

// Reply answers an inbound request.
func (c *Conn) Reply(id json.RawMessage, result any) error {
	msg, err := protocol.NewResult(id, result)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Send writes an already-built message.
func (c *Conn) Send(msg protocol.Message) error {
	return c.send(msg)
}

// Serve reads frames until the stream ends or ctx is cancelled. Pending calls
// are failed with ErrClosed on return. A clean end of stream returns nil.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.failPending()
	frames := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			body, err := ReadFrame(c.reader)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- body:
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("jsonrpc serve: %w", err)
		case body := <-frames:
			c.dispatch(ctx, body)
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, body []byte) {
	msg, err := protocol.ParseMessage(body)
	if err != nil {
		c.logger.Debug("discarding malformed frame", zap.Error(err))
		var rpcErr *protocol.RPCError
		if errors.As(err, &rpcErr) {
			if sendErr := c.send(protocol.NewError(nil, rpcErr.Code, rpcErr.Message)); sendErr != nil {
				c.logger.Debug("error reply failed", zap.Error(sendErr))
			}
		}
		return
	}
	switch {
	case msg.IsResponse():
		c.resolve(msg)
	case msg.IsRequest(), msg.IsNotification():
		if c.handler == nil {
			if msg.IsRequest() {
				if err := c.send(protocol.NewMethodNotFound(msg.ID, msg.Method)); err != nil {
					c.logger.Debug("error reply failed", zap.Error(err))
				}
			}
			return
		}
		c.handler.Handle(ctx, c, msg)
	default:
		c.logger.Debug("discarding message without method or id")
	}
}

func (c *Conn) resolve(msg protocol.Message) {
	key := pendingKey(msg.ID)
	c.mu.Lock()
	ch, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("response for unknown request", zap.String("id", string(msg.ID)))
		return
	}
	ch <- msg
}

// pendingKey maps a response id to the key of the outbound call. Peers that
// echo the numeric id back as a string still match.
func pendingKey(raw json.RawMessage) string {
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return strconv.FormatInt(id, 10)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if id, err := strconv.ParseInt(text, 10, 64); err == nil {
			return strconv.FormatInt(id, 10)
		}
	}
	return string(raw)
}

func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for key, ch := range c.pending {
		ch <- protocol.NewError(json.RawMessage(key), protocol.CodeInternalError, ErrClosed.Error())
		delete(c.pending, key)
	}
}

func (c *Conn) send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.writer, data)
}
