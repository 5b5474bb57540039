package relay

import (
	"strings"
	"testing"
)

func TestTwilioDecode(t *testing.T) {
	d, ok := DialectFor("twilio")
	if !ok {
		t.Fatal("twilio dialect missing")
	}

	tests := []struct {
		name string
		in   string
		want Event
	}{
		{
			"connected",
			`{"event":"connected","protocol":"Call","version":"1.0.0"}`,
			Event{Kind: EventConnected, Type: "connected"},
		},
		{
			"start",
			`{"event":"start","start":{"callSid":"CA123","streamSid":"MZ456","mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ456"}`,
			Event{Kind: EventStart, Type: "start", CallID: "CA123", StreamID: "MZ456", MediaFormat: "audio/x-mulaw 8000Hz 1ch"},
		},
		{
			"media",
			`{"event":"media","media":{"track":"inbound","payload":"cGNt"},"streamSid":"MZ456"}`,
			Event{Kind: EventMedia, Type: "media", StreamID: "MZ456", Payload: "cGNt"},
		},
		{
			"stop",
			`{"event":"stop","stop":{"callSid":"CA123"},"streamSid":"MZ456"}`,
			Event{Kind: EventStop, Type: "stop", CallID: "CA123", StreamID: "MZ456"},
		},
		{
			"unknown is not an error",
			`{"event":"mark","mark":{"name":"x"}}`,
			Event{Kind: EventUnknown, Type: "mark"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlivoDecode(t *testing.T) {
	d, ok := DialectFor("plivo")
	if !ok {
		t.Fatal("plivo dialect missing")
	}

	got, err := d.Decode([]byte(`{"event":"start","start":{"callId":"c-1","streamId":"s-1","mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}}}`))
	if err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if got.Kind != EventStart || got.CallID != "c-1" || got.StreamID != "s-1" {
		t.Fatalf("start mapped wrong: %+v", got)
	}

	got, err = d.Decode([]byte(`{"event":"media","media":{"payload":"YXVkaW8="},"streamId":"s-1"}`))
	if err != nil {
		t.Fatalf("decode media: %v", err)
	}
	if got.Kind != EventMedia || got.Payload != "YXVkaW8=" {
		t.Fatalf("media mapped wrong: %+v", got)
	}

	got, err = d.Decode([]byte(`{"event":"stop","stop":{"callId":"c-1"}}`))
	if err != nil {
		t.Fatalf("decode stop: %v", err)
	}
	if got.Kind != EventStop || got.CallID != "c-1" {
		t.Fatalf("stop mapped wrong: %+v", got)
	}
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	for _, name := range []string{"twilio", "plivo"} {
		d, _ := DialectFor(name)
		if _, err := d.Decode([]byte("{not json")); err == nil {
			t.Fatalf("%s accepted malformed frame", name)
		}
	}
}

func TestStreamInstruction(t *testing.T) {
	url := "wss://relay.example.com/stream"

	d, _ := DialectFor("twilio")
	ct, body := d.StreamInstruction(url)
	if ct != "text/xml" {
		t.Fatalf("twilio content type = %s", ct)
	}
	if !strings.Contains(body, `<Stream url="`+url+`"/>`) {
		t.Fatalf("twilio body missing stream url: %s", body)
	}

	d, _ = DialectFor("plivo")
	ct, body = d.StreamInstruction(url)
	if ct != "application/xml" {
		t.Fatalf("plivo content type = %s", ct)
	}
	if !strings.Contains(body, ">"+url+"</Stream>") {
		t.Fatalf("plivo body missing stream url: %s", body)
	}
	if !strings.Contains(body, `bidirectional="true"`) {
		t.Fatalf("plivo body missing framing flags: %s", body)
	}
}

func TestDialectForUnknownCarrier(t *testing.T) {
	if _, ok := DialectFor("nexmo"); ok {
		t.Fatal("unknown carrier resolved to a dialect")
	}
}
