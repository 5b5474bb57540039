package capture

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestSelectEncoderFallsThroughPreferences(t *testing.T) {
	// the opus variants have no registered encoder; selection must fall
	// through to wav rather than fail
	enc, err := selectEncoder(nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if enc.MimeType() != "audio/wav" {
		t.Fatalf("selected %s, want audio/wav", enc.MimeType())
	}
}

func TestSelectEncoderNoSupportedFormat(t *testing.T) {
	_, err := selectEncoder([]string{"audio/flac", "audio/aac"})
	if !errors.Is(err, ErrNoSupportedFormat) {
		t.Fatalf("err = %v, want NoSupportedFormat", err)
	}
}

func TestWavEncoder(t *testing.T) {
	pcm := []int16{0, 1000, -1000, 32767}
	out, err := wavEncoder{}.Encode(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(out) != 44+len(pcm)*2 {
		t.Fatalf("len = %d, want %d", len(out), 44+len(pcm)*2)
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)*2) {
		t.Fatalf("data length = %d, want %d", got, len(pcm)*2)
	}
	if got := int16(binary.LittleEndian.Uint16(out[46:48])); got != 1000 {
		t.Fatalf("second sample = %d, want 1000", got)
	}
}
