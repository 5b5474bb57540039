package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var ErrNoSupportedFormat = errors.New("NoSupportedFormat")

// Encoder turns a PCM segment into one independently-decodable chunk.
type Encoder interface {
	MimeType() string
	Encode(pcm []int16, sampleRate int) ([]byte, error)
}

// preferredFormats is tried in order; the first with a registered encoder
// wins. Opus variants stay listed so an opus encoder can be registered
// later without touching selection.
var preferredFormats = []string{
	"audio/webm;codecs=opus",
	"audio/ogg;codecs=opus",
	"audio/wav",
}

var encoders = map[string]Encoder{
	"audio/wav": wavEncoder{},
}

// selectEncoder walks prefs and returns the first supported encoder, or
// ErrNoSupportedFormat when none of them is.
func selectEncoder(prefs []string) (Encoder, error) {
	if len(prefs) == 0 {
		prefs = preferredFormats
	}
	for _, mt := range prefs {
		if enc, ok := encoders[mt]; ok {
			return enc, nil
		}
	}
	return nil, ErrNoSupportedFormat
}

// wavEncoder writes a standard PCM WAV container.
type wavEncoder struct{}

func (wavEncoder) MimeType() string { return "audio/wav" }

func (wavEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	dataLen := len(pcm) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range pcm {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes(), nil
}
