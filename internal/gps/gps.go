// Package gps provides the position sources the bridge stamps onto
// outgoing events.
//
// Two operating modes exist. Continuous: every event gets the freshest fix
// pending at enrichment time, and when nothing is pending the default pair
// (0, 0) is attached rather than the previous fix. Fixed (stationary):
// one fix is acquired at startup and reused for the life of the process.
//
// A source never hard-fails after open: positions degrade to the default
// pair when the daemon or device goes quiet.
package gps

// Fix is a single latitude/longitude reading in decimal degrees.
type Fix struct {
	Lat float64
	Lon float64
}

// Default is what consumers get when no fix is available.
var Default = Fix{}

// Source yields the position to stamp onto outgoing events. CurrentFix
// never blocks beyond a short poll window and never fails; it returns a
// copy, so no state is shared with callers.
type Source interface {
	CurrentFix() Fix
	Close() error
}

// FixedSource always returns the snapshot taken at startup. It backs
// stationary mode.
type FixedSource struct {
	fix Fix
}

func NewFixedSource(fix Fix) *FixedSource { return &FixedSource{fix: fix} }

func (s *FixedSource) CurrentFix() Fix { return s.fix }
func (s *FixedSource) Close() error    { return nil }

// NullSource stands in when the position daemon is unreachable at startup:
// the bridge keeps running and attaches default coordinates indefinitely.
type NullSource struct{}

func (NullSource) CurrentFix() Fix { return Default }
func (NullSource) Close() error    { return nil }
