package gps

import (
	"bufio"
	"context"
	"math"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseTPV(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Fix
		ok   bool
	}{
		{
			name: "tpv with coordinates",
			line: `{"class":"TPV","mode":3,"lat":45.5,"lon":-122.9,"alt":100.0}`,
			want: Fix{Lat: 45.5, Lon: -122.9},
			ok:   true,
		},
		{
			name: "tpv missing lon",
			line: `{"class":"TPV","mode":2,"lat":45.5}`,
		},
		{
			name: "sky report",
			line: `{"class":"SKY","hdop":1.2}`,
		},
		{
			name: "version report",
			line: `{"class":"VERSION","release":"3.25"}`,
		},
		{
			name: "malformed json",
			line: `{"class":"TPV","lat":`,
		},
	}

	for _, c := range cases {
		fix, ok := parseTPV(c.line)
		if ok != c.ok {
			t.Fatalf("%s: ok=%v want %v", c.name, ok, c.ok)
		}
		if fix != c.want {
			t.Fatalf("%s: fix=%v want %v", c.name, fix, c.want)
		}
	}
}

func TestGPSDSource_PollIsNonSticky(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	src := &GPSDSource{addr: "pipe", conn: client, pollWindow: 50 * time.Millisecond}
	defer src.Close()

	go func() {
		_, _ = server.Write([]byte(`{"class":"TPV","mode":3,"lat":12.34,"lon":56.78}` + "\n"))
	}()

	fix := src.CurrentFix()
	if math.Abs(fix.Lat-12.34) > 1e-9 || math.Abs(fix.Lon-56.78) > 1e-9 {
		t.Fatalf("fix=%v want {12.34 56.78}", fix)
	}

	// Nothing pending now: the previous fix must not stick.
	fix = src.CurrentFix()
	if fix != Default {
		t.Fatalf("fix=%v want default", fix)
	}
}

func TestGPSDSource_LastPendingReportWins(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	src := &GPSDSource{addr: "pipe", conn: client, pollWindow: 50 * time.Millisecond}
	defer src.Close()

	go func() {
		_, _ = server.Write([]byte(
			`{"class":"TPV","lat":1.0,"lon":2.0}` + "\n" +
				`{"class":"SKY","hdop":0.9}` + "\n" +
				`{"class":"TPV","lat":3.0,"lon":4.0}` + "\n"))
	}()

	fix := src.CurrentFix()
	if fix != (Fix{Lat: 3.0, Lon: 4.0}) {
		t.Fatalf("fix=%v want {3 4}", fix)
	}
}

func TestGPSDSource_IdleDaemonDoesNotStallPoll(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	src := &GPSDSource{addr: "pipe", conn: client, pollWindow: 2 * time.Second}
	defer src.Close()

	start := time.Now()
	fix := src.CurrentFix()
	elapsed := time.Since(start)

	if fix != Default {
		t.Fatalf("fix=%v want default", fix)
	}
	// One idle read ends the query; it must not sit out the window.
	if elapsed > time.Second {
		t.Fatalf("poll took %v with nothing pending", elapsed)
	}
}

func TestDialGPSD_SendsWatchAndPolls(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	watchSeen := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return
		}
		watchSeen <- line
		_, _ = conn.Write([]byte(`{"class":"TPV","mode":3,"lat":9.9,"lon":-8.8}` + "\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	src, err := DialGPSD(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("DialGPSD: %v", err)
	}
	defer src.Close()

	select {
	case line := <-watchSeen:
		if !strings.HasPrefix(line, "?WATCH=") {
			t.Fatalf("handshake=%q want ?WATCH prefix", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no watch handshake received")
	}

	fix := src.CurrentFix()
	if fix != (Fix{Lat: 9.9, Lon: -8.8}) {
		t.Fatalf("fix=%v want {9.9 -8.8}", fix)
	}
}

func TestDialGPSD_Unreachable(t *testing.T) {
	// A port from the dynamic range on localhost that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialGPSD(ctx, addr); err == nil {
		t.Fatalf("expected dial error")
	}
}
