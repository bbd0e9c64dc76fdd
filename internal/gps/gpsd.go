package gps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultGPSDAddr is gpsd's well-known local endpoint.
const DefaultGPSDAddr = "127.0.0.1:2947"

// DefaultPollWindow caps one continuous-mode fix query. A query normally
// ends at the first idle read; the window only bounds a flooding daemon.
const DefaultPollWindow = 25 * time.Millisecond

// drainWait is how long a single sweep read may wait for pending data.
// Reports already buffered return immediately; an idle daemon costs one
// wait, not the whole window.
const drainWait = 5 * time.Millisecond

// scaled=true yields SI units and degrees.
const watchCommand = "?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"

// GPSDSource holds a persistent connection to gpsd with a JSON watch
// enabled and drains pending reports on demand.
type GPSDSource struct {
	addr       string
	conn       net.Conn
	buf        []byte
	pollWindow time.Duration
}

// DialGPSD connects to gpsd and enables JSON streaming reports.
func DialGPSD(ctx context.Context, addr string) (*GPSDSource, error) {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gpsd dial %s: %w", addr, err)
	}
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gpsd watch: %w", err)
	}
	return &GPSDSource{addr: addr, conn: conn, pollWindow: DefaultPollWindow}, nil
}

// AcquireOnce performs the stationary-mode startup acquisition: connect,
// wait up to window for the first position report, then release the
// connection. A window with no position yields the default pair, not an
// error.
func AcquireOnce(ctx context.Context, addr string, window time.Duration) (Fix, error) {
	src, err := DialGPSD(ctx, addr)
	if err != nil {
		return Default, err
	}
	defer func() { _ = src.Close() }()

	fix, _ := src.poll(window, window)
	return fix, nil
}

// CurrentFix drains whatever reports gpsd has pending and returns the last
// complete position among them. Nothing pending means the default pair,
// not the previous fix, and the query returns after one idle read rather
// than sitting out the window.
func (s *GPSDSource) CurrentFix() Fix {
	fix, _ := s.poll(s.pollWindow, drainWait)
	return fix
}

func (s *GPSDSource) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// poll sweeps pending reports for up to window and returns the last
// complete position among them. perRead bounds a single read: the
// stationary acquisition passes the whole window so it can wait for the
// first report, the continuous query passes drainWait so an idle daemon
// costs next to nothing.
func (s *GPSDSource) poll(window, perRead time.Duration) (Fix, bool) {
	if s == nil || s.conn == nil {
		return Default, false
	}

	deadline := time.Now().Add(window)
	fix := Default
	ok := false
	chunk := make([]byte, 4096)
	for {
		if f, got := s.drainLines(); got {
			fix, ok = f, true
		}
		if ok && perRead > drainWait {
			// A position is in hand: later reads only sweep what is
			// already pending.
			perRead = drainWait
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		rd := now.Add(perRead)
		if rd.After(deadline) {
			rd = deadline
		}
		_ = s.conn.SetReadDeadline(rd)
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			// The first idle read ends the sweep: a timeout means nothing
			// more is pending. Connection loss looks the same and degrades
			// the query to what it has produced.
			break
		}
	}
	if f, got := s.drainLines(); got {
		fix, ok = f, true
	}
	return fix, ok
}

// drainLines consumes complete report lines already buffered and returns
// the last position among them.
func (s *GPSDSource) drainLines() (Fix, bool) {
	fix := Default
	ok := false
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			return fix, ok
		}
		line := strings.TrimSpace(string(s.buf[:i]))
		s.buf = append([]byte(nil), s.buf[i+1:]...)
		if line == "" {
			continue
		}
		if f, got := parseTPV(line); got {
			fix, ok = f, true
		}
	}
}

type gpsdReport struct {
	Class string   `json:"class"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

// parseTPV extracts a position from one gpsd report line. Only TPV reports
// carrying both coordinates count; VERSION/DEVICES/SKY and friends are
// skipped, as are malformed lines.
func parseTPV(line string) (Fix, bool) {
	var rep gpsdReport
	if err := json.Unmarshal([]byte(line), &rep); err != nil {
		return Default, false
	}
	if !strings.EqualFold(strings.TrimSpace(rep.Class), "TPV") {
		return Default, false
	}
	if rep.Lat == nil || rep.Lon == nil {
		return Default, false
	}
	return Fix{Lat: *rep.Lat, Lon: *rep.Lon}, true
}
