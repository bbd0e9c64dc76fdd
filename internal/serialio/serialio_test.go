package serialio

import (
	"errors"
	"io"
	"testing"
)

type readResult struct {
	data []byte
	err  error
}

type fakePort struct {
	reads  []readResult
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		// Nothing scripted behaves like a read timeout.
		return 0, nil
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	n := copy(b, r.data)
	return n, r.err
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestReader_LineSplitAcrossReads(t *testing.T) {
	port := &fakePort{reads: []readResult{
		{data: []byte(`{"type":`)},
		{data: []byte("\"nodeMsg\"}\n")},
	}}
	r := NewReader("fake", port)

	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "" {
		t.Fatalf("line=%q want empty (partial record)", line)
	}

	line, err = r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != `{"type":"nodeMsg"}` {
		t.Fatalf("line=%q", line)
	}
}

func TestReader_MultipleLinesOneRead(t *testing.T) {
	port := &fakePort{reads: []readResult{
		{data: []byte("one\r\ntwo\n\nthree\n")},
	}}
	r := NewReader("fake", port)

	want := []string{"one", "two", "three"}
	for _, w := range want {
		line, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if line != w {
			t.Fatalf("line=%q want %q", line, w)
		}
	}

	// Exhausted input reads like a timeout: empty, no error.
	line, err := r.ReadLine()
	if err != nil || line != "" {
		t.Fatalf("line=%q err=%v want empty and nil", line, err)
	}
}

func TestReader_TimeoutIsNotAnError(t *testing.T) {
	r := NewReader("fake", &fakePort{})
	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "" {
		t.Fatalf("line=%q want empty", line)
	}
}

func TestReader_IOErrorAfterPendingDrained(t *testing.T) {
	port := &fakePort{reads: []readResult{
		{data: []byte("last\n"), err: io.ErrUnexpectedEOF},
	}}
	r := NewReader("fake", port)

	// The complete line that arrived with the failing read is still
	// delivered before the failure surfaces.
	line, err := r.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "last" {
		t.Fatalf("line=%q want %q", line, "last")
	}

	_, err = r.ReadLine()
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err=%v want *IOError", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v want wrapped %v", err, io.ErrUnexpectedEOF)
	}
}

func TestReader_ErrorFromDataCarryingReadPersists(t *testing.T) {
	port := &fakePort{reads: []readResult{
		// Both lines and the failure arrive in one read call.
		{data: []byte("one\ntwo\n"), err: io.ErrClosedPipe},
	}}
	r := NewReader("fake", port)

	for _, want := range []string{"one", "two"} {
		line, err := r.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if line != want {
			t.Fatalf("line=%q want %q", line, want)
		}
	}

	// Once pending drains the failure surfaces, and it sticks: the
	// exhausted fake would otherwise read like a timeout again.
	for i := 0; i < 2; i++ {
		_, err := r.ReadLine()
		var ioErr *IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("call %d: err=%v want *IOError", i, err)
		}
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Fatalf("call %d: err=%v want wrapped %v", i, err, io.ErrClosedPipe)
		}
	}
}

func TestDecodeLine_LossyUTF8AndTrim(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("  plain \r"), "plain"},
		{[]byte{'o', 'k', 0xff, 'e', 'n', 'd'}, "ok�end"},
		{[]byte("\t\r"), ""},
	}
	for _, c := range cases {
		if got := DecodeLine(c.in); got != c.want {
			t.Fatalf("DecodeLine(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestReader_CloseClosesPort(t *testing.T) {
	port := &fakePort{}
	r := NewReader("fake", port)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Fatalf("port not closed")
	}
}
