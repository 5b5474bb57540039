package relay

import (
	"encoding/json"
	"fmt"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventConnected
	EventStart
	EventMedia
	EventStop
)

// Event is one carrier protocol message mapped to internal field names.
// The two supported carriers differ only in naming and webhook framing.
type Event struct {
	Kind     EventKind
	Type     string // raw event tag, for logging unknowns
	CallID   CallID
	StreamID StreamID
	// MediaFormat is logged, never validated.
	MediaFormat string
	// Payload is the base64 mu-law audio of a media event.
	Payload string
}

// Dialect maps one carrier's stream protocol onto Event and produces the
// markup document its webhook expects back.
type Dialect interface {
	Name() string
	Decode(data []byte) (Event, error)
	// StreamInstruction renders the document telling the carrier to open a
	// media stream to streamURL. Returns content type and body.
	StreamInstruction(streamURL string) (string, string)
}

func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "twilio":
		return twilioDialect{}, true
	case "plivo":
		return plivoDialect{}, true
	}
	return nil, false
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

func (f mediaFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.SampleRate, f.Channels)
}

// twilioDialect: identifiers are callSid/streamSid, the webhook answers
// TwiML with the stream URL as an attribute.
type twilioDialect struct{}

type twilioFrame struct {
	Event string `json:"event"`
	Start *struct {
		CallSid     string      `json:"callSid"`
		StreamSid   string      `json:"streamSid"`
		MediaFormat mediaFormat `json:"mediaFormat"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Stop *struct {
		CallSid string `json:"callSid"`
	} `json:"stop"`
	StreamSid string `json:"streamSid"`
}

func (twilioDialect) Name() string { return "twilio" }

func (twilioDialect) Decode(data []byte) (Event, error) {
	var f twilioFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("twilio frame: %w", err)
	}
	ev := Event{Type: f.Event, StreamID: StreamID(f.StreamSid)}
	switch f.Event {
	case "connected":
		ev.Kind = EventConnected
	case "start":
		ev.Kind = EventStart
		if f.Start != nil {
			ev.CallID = CallID(f.Start.CallSid)
			ev.StreamID = StreamID(f.Start.StreamSid)
			ev.MediaFormat = f.Start.MediaFormat.String()
		}
	case "media":
		ev.Kind = EventMedia
		if f.Media != nil {
			ev.Payload = f.Media.Payload
		}
	case "stop":
		ev.Kind = EventStop
		if f.Stop != nil {
			ev.CallID = CallID(f.Stop.CallSid)
		}
	default:
		ev.Kind = EventUnknown
	}
	return ev, nil
}

func (twilioDialect) StreamInstruction(streamURL string) (string, string) {
	body := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<Response><Connect><Stream url="` + streamURL + `"/></Connect></Response>`
	return "text/xml", body
}

// plivoDialect: identifiers are callId/streamId, the webhook answers XML
// with the stream URL as element text and bidirectional framing flags.
type plivoDialect struct{}

type plivoFrame struct {
	Event string `json:"event"`
	Start *struct {
		CallID      string      `json:"callId"`
		StreamID    string      `json:"streamId"`
		MediaFormat mediaFormat `json:"mediaFormat"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Stop *struct {
		CallID string `json:"callId"`
	} `json:"stop"`
	StreamID string `json:"streamId"`
}

func (plivoDialect) Name() string { return "plivo" }

func (plivoDialect) Decode(data []byte) (Event, error) {
	var f plivoFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("plivo frame: %w", err)
	}
	ev := Event{Type: f.Event, StreamID: StreamID(f.StreamID)}
	switch f.Event {
	case "connected":
		ev.Kind = EventConnected
	case "start":
		ev.Kind = EventStart
		if f.Start != nil {
			ev.CallID = CallID(f.Start.CallID)
			ev.StreamID = StreamID(f.Start.StreamID)
			ev.MediaFormat = f.Start.MediaFormat.String()
		}
	case "media":
		ev.Kind = EventMedia
		if f.Media != nil {
			ev.Payload = f.Media.Payload
		}
	case "stop":
		ev.Kind = EventStop
		if f.Stop != nil {
			ev.CallID = CallID(f.Stop.CallID)
		}
	default:
		ev.Kind = EventUnknown
	}
	return ev, nil
}

func (plivoDialect) StreamInstruction(streamURL string) (string, string) {
	body := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<Response><Stream bidirectional="true" keepCallAlive="true" contentType="audio/x-mulaw;rate=8000">` +
		streamURL + `</Stream></Response>`
	return "application/xml", body
}
