package relay

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type inbound struct {
	typ  int
	data []byte
	err  error
}

type outbound struct {
	typ  int
	data []byte
}

// fakeConn is an in-memory Conn. Tests feed frames through send and read
// what the session wrote from writes.
type fakeConn struct {
	in     chan inbound
	writes chan outbound

	mu         sync.Mutex
	closeCodes  []int
	readLimit   int64
	pings       int
	pongHandler func(string) error

	// block, when set, stalls WriteMessage until it is closed.
	block chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan inbound, 1024),
		writes: make(chan outbound, 1024),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) send(typ int, data string) {
	c.in <- inbound{typ: typ, data: []byte(data)}
}

func (c *fakeConn) sendText(data string) {
	c.send(websocket.TextMessage, data)
}

// remoteClose simulates the client sending a close frame.
func (c *fakeConn) remoteClose(code int) {
	c.in <- inbound{err: &websocket.CloseError{Code: code}}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.typ, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(typ int, data []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-c.closed:
		}
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.writes <- outbound{typ: typ, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeConn) WriteControl(typ int, data []byte, _ time.Time) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case typ == websocket.PingMessage:
		c.pings++
	case typ == websocket.CloseMessage && len(data) >= 2:
		c.closeCodes = append(c.closeCodes, int(binary.BigEndian.Uint16(data)))
	}
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	c.readLimit = limit
	c.mu.Unlock()
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pongHandler = h
	c.mu.Unlock()
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentCloseCodes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.closeCodes...)
}

// expectText waits for the next text frame written to the transport.
func (c *fakeConn) expectText(t *testing.T, want string) {
	t.Helper()
	select {
	case w := <-c.writes:
		if w.typ != websocket.TextMessage {
			t.Fatalf("Expected text frame, got type %d", w.typ)
		}
		if string(w.data) != want {
			t.Fatalf("Expected %q, got %q", want, string(w.data))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %q", want)
	}
}

func (c *fakeConn) expectNoWrite(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case w := <-c.writes:
		t.Fatalf("Expected no write, got %q", string(w.data))
	case <-time.After(wait):
	}
}

type countingObserver struct {
	mu        sync.Mutex
	opened    int
	closed    int
	received  int
	delivered int
	dropped   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{dropped: make(map[string]int)}
}

func (o *countingObserver) SessionOpened()    { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *countingObserver) SessionClosed()    { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *countingObserver) MessageReceived()  { o.mu.Lock(); o.received++; o.mu.Unlock() }
func (o *countingObserver) MessageDelivered() { o.mu.Lock(); o.delivered++; o.mu.Unlock() }

func (o *countingObserver) MessageDropped(reason string) {
	o.mu.Lock()
	o.dropped[reason]++
	o.mu.Unlock()
}

func (o *countingObserver) droppedFor(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[reason]
}

func (o *countingObserver) snapshot() (opened, closed, received, delivered int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed, o.received, o.delivered
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
