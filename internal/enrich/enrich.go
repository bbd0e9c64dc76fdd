// Package enrich turns raw sensor records into publishable events: decode,
// classify for operator-facing logging, and stamp the current position.
package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"fpvbridge/internal/gps"
)

// ParseError means a record could not be decoded. The record is dropped;
// the pipeline moves on to the next one.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse record: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Kind classifies a sensor event for logging. It never affects whether the
// event is published; every decodable record goes out enriched.
type Kind int

const (
	KindOther Kind = iota
	KindBoot
	KindContactNew
	KindContactUpdate
	KindContactLost
)

func (k Kind) String() string {
	switch k {
	case KindBoot:
		return "boot"
	case KindContactNew:
		return "contact_new"
	case KindContactUpdate:
		return "contact_update"
	case KindContactLost:
		return "contact_lost"
	default:
		return "other"
	}
}

// Event is one enriched record ready for the wire. Fields holds the
// decoded sensor fields plus gps_lat/gps_lon; it is not mutated after
// Enrich returns.
type Event struct {
	Kind   Kind
	Fields map[string]any
}

// Marshal renders the event as its one-line JSON wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// header is the discriminator portion of a record. A missing type or msg
// structure just leaves the fields empty.
type header struct {
	Type string `json:"type"`
	Msg  struct {
		Stat string `json:"stat"`
	} `json:"msg"`
}

// Classify maps a record's type and nested status text onto a Kind.
// Contact-lock substrings are checked in order; first match wins.
func Classify(eventType, stat string) Kind {
	switch eventType {
	case "nodeMsg":
		return KindBoot
	case "nodeAlert":
		switch {
		case strings.Contains(stat, "NEW CONTACT LOCK"):
			return KindContactNew
		case strings.Contains(stat, "LOCK UPDATE"):
			return KindContactUpdate
		case strings.Contains(stat, "LOST CONTACT LOCK"):
			return KindContactLost
		}
	}
	return KindOther
}

// Enrich decodes one raw line and attaches the position snapshot for this
// record. Unknown event types pass through with only the coordinates
// added.
func Enrich(line string, source gps.Source) (Event, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Event{}, &ParseError{Line: line, Err: err}
	}

	var h header
	// Best effort: a record without the discriminator shape still gets
	// enriched and published.
	_ = json.Unmarshal([]byte(line), &h)

	fix := source.CurrentFix()
	fields["gps_lat"] = fix.Lat
	fields["gps_lon"] = fix.Lon

	return Event{Kind: Classify(h.Type, h.Msg.Stat), Fields: fields}, nil
}
