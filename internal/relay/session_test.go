package relay

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/calltap/calltap/internal/stt"
)

// fakeLive records everything the relay sends upstream.
type fakeLive struct {
	mu         sync.Mutex
	ready      bool
	sendErr    error
	sent       []string
	terminated bool
	closed     bool
	results    chan stt.Result
}

func newFakeLive(ready bool) *fakeLive {
	return &fakeLive{ready: ready, results: make(chan stt.Result, 8)}
}

func (f *fakeLive) SendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeLive) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeLive) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	return nil
}

func (f *fakeLive) Results() <-chan stt.Result { return f.results }

func (f *fakeLive) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeLive) sentBytes(t *testing.T) []byte {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, p := range f.sent {
		raw, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			t.Fatalf("upstream payload not base64: %v", err)
		}
		out = append(out, raw...)
	}
	return out
}

func (f *fakeLive) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func frame(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestBufferingScenario(t *testing.T) {
	up := newFakeLive(true)
	s := NewCallSession("CA1", "MZ1", up, 480)

	// five 100-byte non-silent frames against a 480-byte threshold
	for i := 0; i < 4; i++ {
		s.AppendMedia(frame(0x01, 100))
	}
	if got := up.sendCount(); got != 0 {
		t.Fatalf("forwarded before threshold: %d sends", got)
	}
	if got := s.PendingBytes(); got != 400 {
		t.Fatalf("pending = %d, want 400", got)
	}

	s.AppendMedia(frame(0x01, 100))
	if got := up.sendCount(); got != 1 {
		t.Fatalf("sends after fifth frame = %d, want 1", got)
	}
	if got := len(up.sentBytes(t)); got != 500 {
		t.Fatalf("forwarded %d bytes, want 500", got)
	}
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("pending after flush = %d, want 0", got)
	}
}

func TestSilenceFramesNeverBuffered(t *testing.T) {
	up := newFakeLive(true)
	s := NewCallSession("CA1", "MZ1", up, 480)

	for i := 0; i < 10; i++ {
		s.AppendMedia(frame(muLawSilence, 160))
	}
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("silence buffered: %d bytes", got)
	}
	if got := up.sendCount(); got != 0 {
		t.Fatalf("silence forwarded: %d sends", got)
	}

	// a single non-silence byte makes the frame worth keeping
	mixed := frame(muLawSilence, 160)
	mixed[80] = 0x10
	s.AppendMedia(mixed)
	if got := s.PendingBytes(); got != 160 {
		t.Fatalf("mixed frame pending = %d, want 160", got)
	}
}

func TestTailFlushOnStop(t *testing.T) {
	up := newFakeLive(true)
	s := NewCallSession("CA1", "MZ1", up, 480)

	s.AppendMedia(frame(0x02, 120))
	if n := s.Flush(); n != 120 {
		t.Fatalf("flush forwarded %d bytes, want 120", n)
	}
	if got := up.sendCount(); got != 1 {
		t.Fatalf("sends after flush = %d, want 1", got)
	}
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("pending after flush = %d, want 0", got)
	}

	// second flush with empty buffer is a no-op
	if n := s.Flush(); n != 0 {
		t.Fatalf("empty flush forwarded %d bytes", n)
	}
	if got := up.sendCount(); got != 1 {
		t.Fatalf("empty flush sent anyway: %d sends", got)
	}
}

func TestFramesDroppedWhileUpstreamNotReady(t *testing.T) {
	up := newFakeLive(false)
	s := NewCallSession("CA1", "MZ1", up, 480)

	for i := 0; i < 10; i++ {
		s.AppendMedia(frame(0x03, 100))
	}
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("frames queued against stalled upstream: %d bytes", got)
	}
	if got := up.sendCount(); got != 0 {
		t.Fatalf("sends while not ready = %d", got)
	}
}

func TestFramesDroppedWithNilUpstream(t *testing.T) {
	s := NewCallSession("CA1", "MZ1", nil, 480)
	s.AppendMedia(frame(0x03, 600))
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("frames queued with nil upstream: %d bytes", got)
	}
}

func TestFailedUpstreamSendDropsBatch(t *testing.T) {
	up := newFakeLive(true)
	up.sendErr = errors.New("write: broken pipe")
	s := NewCallSession("CA1", "MZ1", up, 480)

	if n := s.AppendMedia(frame(0x01, 500)); n != 0 {
		t.Fatalf("failed send reported %d bytes forwarded, want 0", n)
	}
	if got := s.PendingBytes(); got != 0 {
		t.Fatalf("pending = %d after dropped batch, want 0", got)
	}

	// upstream recovers; later audio flows without the stale batch
	up.mu.Lock()
	up.sendErr = nil
	up.mu.Unlock()
	if n := s.AppendMedia(frame(0x02, 480)); n != 480 {
		t.Fatalf("forwarded %d bytes after recovery, want 480", n)
	}
	if got := up.sentBytes(t); !bytes.Equal(got, frame(0x02, 480)) {
		t.Fatalf("upstream received %d bytes, want only the post-recovery batch", len(got))
	}
}

func TestForwardedEqualsReceivedMinusSilence(t *testing.T) {
	up := newFakeLive(true)
	s := NewCallSession("CA1", "MZ1", up, 480)

	var wantTotal int
	for i := 0; i < 20; i++ {
		if i%4 == 3 {
			s.AppendMedia(frame(muLawSilence, 160))
			continue
		}
		b := byte(i + 1)
		s.AppendMedia(frame(b, 160))
		wantTotal += 160
	}
	s.Flush()

	got := up.sentBytes(t)
	if len(got) != wantTotal {
		t.Fatalf("forwarded %d bytes, want %d", len(got), wantTotal)
	}
	for _, b := range got {
		if b == muLawSilence {
			t.Fatal("silence byte forwarded upstream")
		}
	}
}
