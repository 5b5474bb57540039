package capture

import "time"

// Chunk is one time-bounded unit of encoded mixed audio, already in
// transport-safe (base64) form.
type Chunk struct {
	Data      string
	MimeType  string
	Timestamp time.Time
}

// Listener receives orchestrator broadcasts. Implementations must not
// block; slow consumers should buffer or drop on their own side.
type Listener interface {
	OnRecordingStarted(hasAmbient, hasLocal bool)
	OnRecordingStopped()
	OnRecordingError(reason string)
	OnAudioChunk(chunk Chunk)
}
