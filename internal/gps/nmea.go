package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"fpvbridge/internal/serialio"
)

// nmeaPollCap bounds how many buffered sentences one poll will chew
// through if the receiver floods.
const nmeaPollCap = 32

// NMEASource reads RMC sentences straight from a GNSS receiver on a serial
// port. It is the alternative to gpsd for installs without the daemon.
type NMEASource struct {
	reader *serialio.Reader
}

// OpenNMEA opens the receiver with a poll-sized read timeout so CurrentFix
// stays a non-blocking check.
func OpenNMEA(device string, baud int) (*NMEASource, error) {
	r, err := serialio.OpenWithTimeout(device, baud, DefaultPollWindow)
	if err != nil {
		return nil, err
	}
	return &NMEASource{reader: r}, nil
}

// AcquireOnceNMEA is the stationary-mode startup acquisition over a direct
// serial receiver: read sentences for up to window, keep the last valid
// RMC position, close the port.
func AcquireOnceNMEA(device string, baud int, window time.Duration) (Fix, error) {
	src, err := OpenNMEA(device, baud)
	if err != nil {
		return Default, err
	}
	defer func() { _ = src.Close() }()

	deadline := time.Now().Add(window)
	fix := Default
	for time.Now().Before(deadline) {
		if f, got := src.pollOnce(); got {
			fix = f
		}
	}
	return fix, nil
}

// CurrentFix drains the sentences already pending on the port and returns
// the last valid position among them, or the default pair.
func (s *NMEASource) CurrentFix() Fix {
	fix, _ := s.pollOnce()
	return fix
}

func (s *NMEASource) pollOnce() (Fix, bool) {
	fix := Default
	ok := false
	for i := 0; i < nmeaPollCap; i++ {
		line, err := s.reader.ReadLine()
		if err != nil || line == "" {
			break
		}
		if f, got := ParseRMC(line); got {
			fix, ok = f, true
		}
	}
	return fix, ok
}

func (s *NMEASource) Close() error {
	if s == nil {
		return nil
	}
	return s.reader.Close()
}

// ParseRMC extracts a position from one NMEA sentence. Only valid RMC
// sentences count; other sentence types, void fixes and receiver chatter
// are skipped.
func ParseRMC(line string) (Fix, bool) {
	if !strings.HasPrefix(line, "$") {
		return Default, false
	}
	sent, err := nmea.Parse(line)
	if err != nil {
		return Default, false
	}
	if sent.DataType() != nmea.TypeRMC {
		return Default, false
	}
	rmc, ok := sent.(nmea.RMC)
	if !ok {
		return Default, false
	}
	if rmc.Validity != nmea.ValidRMC {
		return Default, false
	}
	return Fix{Lat: rmc.Latitude, Lon: rmc.Longitude}, true
}
