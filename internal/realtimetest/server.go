// Package realtimetest runs an in-process stand-in for the realtime service so
// transport and session tests do not need the network.
package realtimetest

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

const DefaultTimeout = 2 * time.Second

type Server struct {
	*httptest.Server

	// Authorize rejects the handshake with 401 when it returns false.
	Authorize func(r *http.Request) bool

	conns chan *Conn
}

func NewServer(t testing.TB) *Server {
	s := &Server{conns: make(chan *Conn, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Authorize != nil && !s.Authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u := ws.HTTPUpgrader{
		Protocol: func(p string) bool { return p == "realtime" },
	}
	conn, _, hs, err := u.Upgrade(r, w)
	if err != nil {
		return
	}

	c := &Conn{
		conn:     conn,
		received: make(chan []byte, 256),
		finished: make(chan struct{}),
		Header:   r.Header.Clone(),
		Query:    r.URL.Query(),
		Protocol: hs.Protocol,
	}
	go c.readLoop()
	s.conns <- c
}

// Accept returns the next connection made to the server.
func (s *Server) Accept(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(DefaultTimeout):
		require.FailNow(t, "no connection accepted")
		return nil
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	conn     net.Conn
	wmu      sync.Mutex
	received chan []byte
	finished chan struct{}

	Header   http.Header
	Query    url.Values
	Protocol string
}

func (c *Conn) readLoop() {
	defer close(c.finished)
	defer close(c.received)
	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		if op == ws.OpText {
			c.received <- data
		}
	}
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.SendRaw(t, data)
}

func (c *Conn) SendRaw(t testing.TB, data []byte) {
	t.Helper()
	c.wmu.Lock()
	defer c.wmu.Unlock()
	require.NoError(t, wsutil.WriteServerMessage(c.conn, ws.OpText, data))
}

// Next returns the next client message decoded into a map.
func (c *Conn) Next(t testing.TB) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.received:
		require.True(t, ok, "connection closed")
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(DefaultTimeout):
		require.FailNow(t, "no client message received")
		return nil
	}
}

// NextOfType skips client messages until one of the given type arrives.
func (c *Conn) NextOfType(t testing.TB, eventType string) map[string]any {
	t.Helper()
	for {
		m := c.Next(t)
		if m["type"] == eventType {
			return m
		}
	}
}

// Close performs a normal closing handshake.
func (c *Conn) Close() {
	c.wmu.Lock()
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.wmu.Unlock()
	select {
	case <-c.finished:
	case <-time.After(DefaultTimeout):
	}
	_ = c.conn.Close()
}

// Drop closes the TCP connection without a closing handshake.
func (c *Conn) Drop() {
	_ = c.conn.Close()
}

// Closed is closed when the client side has gone away.
func (c *Conn) Closed() <-chan struct{} {
	return c.finished
}
