package sink

import (
	"fmt"
	"net"
)

// UDP forwards each event as one datagram to a fixed destination, for
// consumers that want the feed pushed at them instead of subscribing to
// the broadcast endpoint.
type UDP struct {
	dest string
	conn udpConn
}

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// DialUDP resolves and connects the forwarding socket.
func DialUDP(dest string) (*UDP, error) {
	return dialUDP(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func dialUDP(
	dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*UDP, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// Dialing selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &UDP{dest: dest, conn: conn}, nil
}

// Publish sends one datagram; errors are swallowed because a vanished
// consumer must not affect the pipeline.
func (u *UDP) Publish(payload []byte) {
	if u == nil || len(payload) == 0 {
		return
	}
	_, _ = u.conn.Write(payload)
}

func (u *UDP) Close() error {
	if u == nil || u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
