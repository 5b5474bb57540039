package relay

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/stt"
)

type (
	CallID   string
	StreamID string
)

// muLawSilence is the mu-law encoding of digital silence. A frame made of
// nothing else carries no transcription value and is discarded outright.
const muLawSilence = 0xFF

// DefaultFlushThreshold is 60ms of 8kHz mono mu-law audio. Buffered bytes
// are forwarded upstream once the buffer reaches it; smaller buffers are
// held to keep per-message overhead down.
const DefaultFlushThreshold = 480

// CallSession tracks one live telephony call: its identifiers, the bytes
// not yet forwarded, the transcript fragments received so far, and the
// upstream recognition connection.
type CallSession struct {
	CallID    CallID
	StreamID  StreamID
	StartedAt time.Time

	threshold int

	mu         sync.Mutex
	pending    []byte
	transcript []string
	upstream   stt.LiveSession
}

func NewCallSession(callID CallID, streamID StreamID, upstream stt.LiveSession, threshold int) *CallSession {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &CallSession{
		CallID:    callID,
		StreamID:  streamID,
		StartedAt: time.Now(),
		threshold: threshold,
		upstream:  upstream,
	}
}

// AppendMedia ingests one decoded media frame. Silence-only frames are
// discarded. Frames arriving while the upstream is not ready are dropped,
// not queued — unbounded growth against a stalled recognizer is worse
// than a transcription gap. Returns how many bytes were forwarded.
func (s *CallSession) AppendMedia(frame []byte) int {
	if len(frame) == 0 || allSilence(frame) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upstream == nil || !s.upstream.Ready() {
		log.Debug().Str("module", "relay.session").Str("call", string(s.CallID)).Int("bytes", len(frame)).Msg("upstream not ready, frame dropped")
		return 0
	}

	s.pending = append(s.pending, frame...)
	if len(s.pending) < s.threshold {
		return 0
	}
	return s.flushLocked()
}

// Flush forwards whatever is buffered, threshold or not. Called on the
// carrier's stop event so the recording tail is never dropped.
func (s *CallSession) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0
	}
	return s.flushLocked()
}

func (s *CallSession) flushLocked() int {
	if s.upstream == nil {
		return 0
	}
	n := len(s.pending)
	payload := base64.StdEncoding.EncodeToString(s.pending)
	if err := s.upstream.SendAudio(payload); err != nil {
		// the batch is dropped rather than retried, but it is dropped
		// on the record
		log.Warn().Err(err).Str("module", "relay.session").Str("call", string(s.CallID)).Int("lost_bytes", n).Msg("upstream send failed, batch dropped")
		s.pending = s.pending[:0]
		return 0
	}
	s.pending = s.pending[:0]
	return n
}

// PendingBytes reports the buffered byte count. After any flush it is
// always below the threshold (zero, in fact).
func (s *CallSession) PendingBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *CallSession) AddTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, text)
}

func (s *CallSession) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Upstream returns the recognition connection, which may be nil when the
// dial failed at call start.
func (s *CallSession) Upstream() stt.LiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

func allSilence(frame []byte) bool {
	for _, b := range frame {
		if b != muLawSilence {
			return false
		}
	}
	return true
}
