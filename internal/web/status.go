package web

import (
	"time"

	"fpvbridge/internal/pubsub"
	"fpvbridge/internal/stream"
)

// Status aggregates live snapshots from the pipeline for the status
// endpoint. The funcs are read-only probes supplied at wiring time.
type Status struct {
	start time.Time

	GPSMode   string
	GPSSource string

	Stream  func() stream.Snapshot
	Publish func() pubsub.Snapshot
}

func NewStatus() *Status {
	return &Status{start: time.Now().UTC()}
}

type StatusSnapshot struct {
	UptimeSec float64         `json:"uptime_sec"`
	GPSMode   string          `json:"gps_mode"`
	GPSSource string          `json:"gps_source"`
	Stream    stream.Snapshot `json:"stream"`
	Publish   pubsub.Snapshot `json:"publish"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if s == nil {
		return StatusSnapshot{}
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	out := StatusSnapshot{
		UptimeSec: nowUTC.Sub(s.start).Seconds(),
		GPSMode:   s.GPSMode,
		GPSSource: s.GPSSource,
	}
	if s.Stream != nil {
		out.Stream = s.Stream()
	}
	if s.Publish != nil {
		out.Publish = s.Publish()
	}
	return out
}
