package ws

import "sync"

type client struct {
	id     string
	filter *int
	send   chan []byte

	mu     sync.Mutex
	closed bool // Protected by mu
}

func newClient(id string, filter *int) *client {
	return &client{
		id:     id,
		filter: filter,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *client) wants(uid int) bool {
	return c.filter == nil || *c.filter == uid
}

// trySend queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
