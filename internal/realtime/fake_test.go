package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
)

var errClosed = errors.New("connection closed")

// fakeConn is an in-memory Conn; the test plays the server
type fakeConn struct {
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written []request
	onWrite func(c *fakeConn, req request)
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, req)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(c, req)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
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

func (c *fakeConn) push(v string) { c.in <- []byte(v) }

func (c *fakeConn) requests() []request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]request(nil), c.written...)
}

// fakeDialer hands out connections from next, counting dials
type fakeDialer struct {
	dials atomic.Int32
	next  func(n int) (Conn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	n := int(d.dials.Add(1))
	return d.next(n)
}
