// Package pubsub is the broadcast endpoint: a TCP listener fanning every
// published message out to all connected subscribers, none of which is
// required to exist or to keep up.
package pubsub

import (
	"net"
	"sync"
	"sync/atomic"
)

// SendBuffer is the per-subscriber high-water mark: a subscriber this many
// messages behind starts losing messages instead of stalling the pipeline.
const SendBuffer = 1000

// Client is one connected subscriber.
type Client struct {
	Send chan []byte
	Conn net.Conn
}

type Pool struct {
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*Client]bool

	published atomic.Uint64
	dropped   atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

type Snapshot struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

func NewPool() *Pool {
	return &Pool{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Run owns the client set; it is the only goroutine that mutates it.
func (p *Pool) Run() {
	defer close(p.finished)
	for {
		select {
		case <-p.done:
			p.mu.Lock()
			for c := range p.clients {
				close(c.Send)
				if c.Conn != nil {
					_ = c.Conn.Close()
				}
				delete(p.clients, c)
			}
			p.mu.Unlock()
			return
		case c := <-p.Register:
			p.mu.Lock()
			p.clients[c] = true
			p.mu.Unlock()
		case c := <-p.Unregister:
			p.mu.Lock()
			if p.clients[c] {
				delete(p.clients, c)
				close(c.Send)
			}
			p.mu.Unlock()
		case msg := <-p.Broadcast:
			p.published.Add(1)
			p.mu.RLock()
			for c := range p.clients {
				select {
				case c.Send <- msg:
				default:
					// Subscriber is SendBuffer messages behind; drop
					// rather than block the pipeline.
					p.dropped.Add(1)
				}
			}
			p.mu.RUnlock()
		}
	}
}

// Publish hands one serialized message to the fan-out. The only discard
// policy is the per-subscriber high-water mark applied in Run, whose
// fan-out never blocks, so the handoff here cannot wedge; a stopped pool
// discards the message.
func (p *Pool) Publish(msg []byte) {
	select {
	case p.Broadcast <- msg:
	case <-p.done:
	}
}

// Stop shuts the pool down without waiting for pending deliveries.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	<-p.finished
}

// ClientCount reports the number of connected subscribers.
func (p *Pool) ClientCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Subscribers: p.ClientCount(),
		Published:   p.published.Load(),
		Dropped:     p.dropped.Load(),
	}
}

// register adds a client unless the pool is already stopped.
func (p *Pool) register(c *Client) bool {
	select {
	case p.Register <- c:
		return true
	case <-p.done:
		return false
	}
}

// unregister removes a client; safe to call after Stop.
func (p *Pool) unregister(c *Client) {
	select {
	case p.Unregister <- c:
	case <-p.done:
	}
}
