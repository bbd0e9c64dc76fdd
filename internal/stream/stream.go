package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// LineSource is one live connection to the sensor transport. ReadLine
// returns ("", nil) when a bounded read produced no complete line yet.
type LineSource interface {
	ReadLine() (string, error)
	Close() error
}

// OpenFunc establishes a fresh LineSource. It is called on every
// (re)connect attempt.
type OpenFunc func() (LineSource, error)

const (
	StateClosed     = "closed"
	StateConnecting = "connecting"
	StateStreaming  = "streaming"
	StateBackoff    = "backoff"
)

type Config struct {
	Name string
	Open OpenFunc

	// ReconnectDelay is the fixed wait between attempts. Retries are
	// unbounded; a long-running unattended install is the normal case.
	ReconnectDelay time.Duration

	// OnBackoff, when set, is called once per transition into backoff.
	OnBackoff func(cause error)
}

// Stream supervises a LineSource: connect, read lines, and on any
// transport failure wait out the backoff delay and reconnect. Only context
// cancellation ends it.
type Stream struct {
	cfg Config

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	count    uint64
	restarts uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type Snapshot struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Lines       uint64 `json:"lines"`
	Reconnects  uint64 `json:"reconnects"`
}

func New(cfg Config) (*Stream, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if cfg.Open == nil {
		return nil, fmt.Errorf("stream open func is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Stream{cfg: cfg, state: StateClosed, done: make(chan struct{})}, nil
}

// Start begins supervising the source and delivers every non-empty line to
// onLine, in arrival order, one at a time.
//
// onLine runs on the stream goroutine; records are strictly sequential.
func (s *Stream) Start(ctx context.Context, onLine func(line string)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("stream is closed")
	}
	if onLine == nil {
		return fmt.Errorf("stream onLine is nil")
	}
	if s.started.Swap(true) {
		return fmt.Errorf("stream already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)
		s.runLoop(runCtx, onLine)
	}()
	return nil
}

func (s *Stream) Close() {
	if s == nil {
		return
	}
	if s.closed.Swap(true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.started.Load() {
		<-s.done
	}
}

func (s *Stream) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		Name:       s.cfg.Name,
		State:      s.state,
		LastError:  s.lastErr,
		Lines:      s.count,
		Reconnects: s.restarts,
	}
	if !s.lastSeen.IsZero() {
		out.LastSeenUTC = s.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (s *Stream) runLoop(ctx context.Context, onLine func(line string)) {
	for {
		if ctx.Err() != nil {
			s.setState(StateClosed, "")
			return
		}

		s.setState(StateConnecting, "")
		src, err := s.cfg.Open()
		if err != nil {
			log.Printf("stream %s: %v; retrying in %s", s.cfg.Name, err, s.cfg.ReconnectDelay)
			if !s.backoff(ctx, err) {
				s.setState(StateClosed, "")
				return
			}
			continue
		}

		s.setState(StateStreaming, "")
		log.Printf("stream %s: connected", s.cfg.Name)

		readErr := s.consume(ctx, src, onLine)
		_ = src.Close()

		if ctx.Err() != nil {
			s.setState(StateClosed, "")
			return
		}

		log.Printf("stream %s: %v; reconnecting in %s", s.cfg.Name, readErr, s.cfg.ReconnectDelay)
		if !s.backoff(ctx, readErr) {
			s.setState(StateClosed, "")
			return
		}
	}
}

// consume reads lines until the transport fails or the context ends.
func (s *Stream) consume(ctx context.Context, src LineSource, onLine func(line string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := src.ReadLine()
		if err != nil {
			return err
		}
		if line == "" {
			// Read timeout with no data. Not an error; also the point
			// where cancellation is picked up promptly.
			continue
		}

		onLine(line)

		now := time.Now().UTC()
		s.mu.Lock()
		s.lastSeen = now
		s.count++
		s.mu.Unlock()
	}
}

// backoff waits out the reconnect delay. It returns false when the context
// ended during the wait.
func (s *Stream) backoff(ctx context.Context, cause error) bool {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.setState(StateBackoff, msg)

	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()

	if s.cfg.OnBackoff != nil {
		s.cfg.OnBackoff(cause)
	}
	return sleepCtx(ctx, s.cfg.ReconnectDelay)
}

func (s *Stream) setState(state string, lastErr string) {
	s.mu.Lock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == StateStreaming || state == StateClosed {
		// Clear stale errors on healthy/neutral states so status output
		// doesn't look broken after a transient failure.
		s.lastErr = ""
	}
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
