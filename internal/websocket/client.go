package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	Protocols   []string
	OnText      func(data []byte) error
	// OnClose is called exactly once after the last message was handled. err is
	// nil for a normal closure.
	OnClose func(err error)
	Logger  *slog.Logger
}

type Client struct {
	conn      net.Conn
	out       chan wsutil.Message
	done      chan struct{}
	doneOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	logger    *slog.Logger
	protocol  string

	// acked is closed once the peer's close frame was read or the read side
	// ended, whichever comes first.
	acked    chan struct{}
	ackOnce  sync.Once
	handling atomic.Bool
}

func (c *Client) setAcked() {
	c.ackOnce.Do(func() {
		close(c.acked)
	})
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Protocol returns the subprotocol selected by the server.
func (c *Client) Protocol() string {
	return c.protocol
}

// Done is closed once the connection has ended and OnClose has returned.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close performs the closing handshake and waits for the read side to finish.
// The connection is dropped if ctx ends first.
//
// While a message handler runs, the read side cannot finish before the
// handler returns. Close then only waits for the peer to acknowledge, and
// OnClose follows once the handler has returned.
func (c *Client) Close(ctx context.Context) error {
	c.closing.Store(true)
	if err := c.SendClose(ws.StatusNormalClosure, "closing"); err != nil {
		return nil
	}

	wait := c.closed
	if c.handling.Load() {
		wait = c.acked
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		_ = c.conn.Close()
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	// handshake timeout only, the connection outlives ctx
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout:   dialTimeout,
		Header:    ws.HandshakeHeaderHTTP(config.Headers),
		Protocols: config.Protocols,
	}
	conn, br, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	logger.Debug("handshake complete", slog.String("protocol", hs.Protocol))

	// the handshake may have buffered frames already
	var reader io.Reader = conn
	if br != nil {
		reader = br
	}

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:     conn,
		out:      output,
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
		logger:   logger,
		protocol: hs.Protocol,
		acked:    make(chan struct{}),
	}

	onTextFunc := config.OnText
	if onTextFunc == nil {
		onTextFunc = func(data []byte) error {
			return nil
		}
	}
	onCloseFunc := config.OnClose
	if onCloseFunc == nil {
		onCloseFunc = func(error) {}
	}

	var readErr error

	// websocket -> input channel
	go func() {
		defer close(input)
		defer client.setAcked()
		defer func() {
			if br != nil {
				ws.PutReader(br)
			}
		}()
		for {
			messages, err := wsutil.ReadServerMessage(reader, nil)
			if err != nil {
				if client.closing.Load() && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)) {
					return
				}
				logger.Error("ws read failed", slog.Any("err", err))
				readErr = err
				return
			}
			for _, msg := range messages {
				if msg.OpCode == ws.OpClose {
					client.closing.Store(true)
				}
				input <- msg
				if msg.OpCode == ws.OpClose {
					client.setAcked()
				}
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-client.done:
				return
			case msg := <-output:
				err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload)
				if err != nil {
					logger.Error("message write error", slog.Any("err", err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// input channel processing, in arrival order
	go func() {
		defer client.closeOnce.Do(func() { close(client.closed) })
		for msg := range input {
			if msg.OpCode.IsControl() {
				logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))

				if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
					var closedErr wsutil.ClosedError
					if !errors.As(err, &closedErr) {
						logger.Error("handling of control messages failed", slog.Any("err", err))
					}
				}
				if msg.OpCode == ws.OpClose {
					logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					_ = conn.Close()
				}
				continue
			}

			switch msg.OpCode {
			case ws.OpText:
				client.handling.Store(true)
				err := onTextFunc(msg.Payload)
				client.handling.Store(false)
				if err != nil {
					logger.Error("text message handler failed", slog.Any("err", err))
				}

			case ws.OpBinary:
				logger.Warn("ignoring binary message", slog.Int("len", len(msg.Payload)))
			}
		}

		client.setDone()
		_ = conn.Close()
		onCloseFunc(readErr)
	}()

	return client, nil
}
