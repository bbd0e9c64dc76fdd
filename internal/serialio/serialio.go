package serialio

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds a single blocking read on the device, so a
// shutdown signal is never stuck behind a silent sensor for long.
const DefaultReadTimeout = 1 * time.Second

// OpenError means the device could not be opened at all. The stream layer
// treats it as retryable.
type OpenError struct {
	Device string
	Err    error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Device, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// IOError means an established connection is no longer usable.
type IOError struct {
	Device string
	Err    error
}

func (e *IOError) Error() string { return fmt.Sprintf("read %s: %v", e.Device, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Port is the minimal surface of a serial handle the reader needs.
// Read must return (0, nil) on a read timeout.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Reader reads newline-terminated records from a serial device.
type Reader struct {
	device string
	port   Port

	buf     []byte   // raw bytes not yet split into lines
	pending []string // complete lines not yet handed out
	lastErr error    // read failure held back until pending drains
}

const readChunk = 512

// Open opens the sensor device at the given baud rate with the default
// read timeout.
func Open(device string, baud int) (*Reader, error) {
	return OpenWithTimeout(device, baud, DefaultReadTimeout)
}

// OpenWithTimeout is Open with an explicit per-read timeout. The position
// sources use a much shorter timeout than the sensor feed.
func OpenWithTimeout(device string, baud int, timeout time.Duration) (*Reader, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, &OpenError{Device: device, Err: err}
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, &OpenError{Device: device, Err: err}
	}
	return NewReader(device, port), nil
}

// NewReader wraps an already-open port. Split out from Open so the line
// assembly can be driven with a fake port.
func NewReader(device string, port Port) *Reader {
	return &Reader{device: device, port: port}
}

// ReadLine returns the next decoded line. An empty string with a nil error
// means the read timed out with no complete line pending; that is not an
// error. A non-nil error is always an *IOError and means the connection is
// done.
func (r *Reader) ReadLine() (string, error) {
	if line, ok := r.nextPending(); ok {
		return line, nil
	}
	if r.lastErr != nil {
		return "", &IOError{Device: r.device, Err: r.lastErr}
	}

	chunk := make([]byte, readChunk)
	n, err := r.port.Read(chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
		r.splitLines()
	}
	if line, ok := r.nextPending(); ok {
		// A read can deliver data and fail in the same call. The line
		// goes out now, the failure on the next call.
		r.lastErr = err
		return line, nil
	}
	if err != nil {
		r.lastErr = err
		return "", &IOError{Device: r.device, Err: err}
	}
	return "", nil
}

func (r *Reader) Close() error {
	if r == nil || r.port == nil {
		return nil
	}
	return r.port.Close()
}

func (r *Reader) nextPending() (string, bool) {
	for len(r.pending) > 0 {
		line := r.pending[0]
		r.pending = r.pending[1:]
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (r *Reader) splitLines() {
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			return
		}
		raw := r.buf[:i]
		r.buf = append([]byte(nil), r.buf[i+1:]...)
		r.pending = append(r.pending, DecodeLine(raw))
	}
}

// DecodeLine converts raw sensor bytes to text: invalid UTF-8 is replaced
// rather than rejected, and surrounding whitespace (including the \r of
// CRLF-terminated records) is trimmed.
func DecodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
}
