package transport

import (
	"errors"
	"sync"
	"time"
)

// fakeConn implements wsConnection as a queue of inbound frames plus a
// record of everything written, so tests never need a real socket.
type fakeConn struct {
	mu      sync.Mutex
	inbox   [][]byte
	readIdx int
	written [][]byte
	closed  bool
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{}
	for _, f := range frames {
		c.inbox = append(c.inbox, []byte(f))
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readIdx >= len(c.inbox) {
		return 0, nil, errors.New("fakeConn: no more frames")
	}
	data := c.inbox[c.readIdx]
	c.readIdx++
	return 1, data, nil // websocket.TextMessage == 1
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fakeConn: closed")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}
