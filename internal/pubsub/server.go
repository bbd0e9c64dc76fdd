package pubsub

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
)

// Server accepts subscriber connections on a TCP port and forwards every
// published message to each of them, one newline-terminated JSON object
// per message.
type Server struct {
	pool   *Pool
	ln     net.Listener
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Listen binds the publish endpoint on all interfaces. A bind failure here
// is the one fatal startup error the process has.
func Listen(port int, pool *Pool) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind publish endpoint :%d: %w", port, err)
	}

	s := &Server{pool: pool, ln: ln}
	go s.acceptLoop()
	log.Printf("publish endpoint bound on %s", ln.Addr())
	return s, nil
}

// Port reports the bound port; handy when the configured port was 0.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close tears the endpoint down without waiting for pending deliveries:
// stop accepting, stop the pool (which closes every subscriber), then wait
// for the writer goroutines to notice.
func (s *Server) Close() {
	if s.closed.Swap(true) {
		return
	}
	_ = s.ln.Close()
	s.pool.Stop()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.closed.Load() {
				log.Printf("publish accept: %v", err)
			}
			return
		}

		client := &Client{
			Conn: conn,
			Send: make(chan []byte, SendBuffer),
		}
		if !s.pool.register(client) {
			_ = conn.Close()
			return
		}

		log.Printf("subscriber connected: %s (total %d)", conn.RemoteAddr(), s.pool.ClientCount())
		s.wg.Add(1)
		go s.writeLoop(client)
	}
}

func (s *Server) writeLoop(c *Client) {
	defer func() {
		s.pool.unregister(c)
		_ = c.Conn.Close()
		s.wg.Done()
		log.Printf("subscriber disconnected: %s (total %d)", c.Conn.RemoteAddr(), s.pool.ClientCount())
	}()

	for msg := range c.Send {
		framed := make([]byte, 0, len(msg)+1)
		framed = append(framed, msg...)
		framed = append(framed, '\n')
		if _, err := c.Conn.Write(framed); err != nil {
			return
		}
	}
}
