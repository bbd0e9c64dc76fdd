package sink

import (
	"errors"
	"net"
	"testing"
)

type fakeConn struct {
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestDialUDP_ResolvesAndDials(t *testing.T) {
	fc := &fakeConn{}
	var gotRaddr *net.UDPAddr

	u, err := dialUDP("127.0.0.1:4020",
		net.ResolveUDPAddr,
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
			gotRaddr = raddr
			return fc, nil
		})
	if err != nil {
		t.Fatalf("dialUDP: %v", err)
	}
	defer u.Close()

	if gotRaddr == nil || gotRaddr.Port != 4020 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4020", gotRaddr)
	}
}

func TestDialUDP_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	_, err := dialUDP("bad:addr",
		func(network, address string) (*net.UDPAddr, error) { return nil, resolveErr },
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) { return &fakeConn{}, nil })
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestUDP_PublishWritesPayloadAndSkipsEmpty(t *testing.T) {
	fc := &fakeConn{}
	u := &UDP{dest: "x", conn: fc}

	u.Publish(nil)
	u.Publish([]byte{})
	if len(fc.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(fc.writes))
	}

	u.Publish([]byte(`{"n":1}`))
	if len(fc.writes) != 1 || string(fc.writes[0]) != `{"n":1}` {
		t.Fatalf("writes=%v", fc.writes)
	}
}

func TestUDP_PublishSwallowsWriteErrors(t *testing.T) {
	fc := &fakeConn{writeErr: errors.New("boom")}
	u := &UDP{dest: "x", conn: fc}

	// Must not panic or propagate.
	u.Publish([]byte("m"))
}

func TestUDP_NilSafe(t *testing.T) {
	var u *UDP
	u.Publish([]byte("m"))
	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
