package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNoAudioSource = errors.New("NoAudioSource")

// stopGrace is how long StopCapture waits for the segmenter to emit the
// tail chunk before releasing resources anyway.
const stopGrace = 500 * time.Millisecond

type EngineEventKind int

const (
	EngineChunk EngineEventKind = iota
	EngineFatal
)

type EngineEvent struct {
	Kind  EngineEventKind
	Chunk Chunk
	Err   error
}

type StartRequest struct {
	// Ambient is the best-effort tab/page source; nil means acquisition
	// failed upstream and recording proceeds local-only.
	Ambient Source
	Local   Source
	Cadence time.Duration
}

type StartReply struct {
	Err        error
	HasAmbient bool
	HasLocal   bool
}

// Engine is the mixing-engine boundary. Both calls are asynchronous round
// trips completed over the returned channel; the orchestrator owns the
// timeouts on its side.
type Engine interface {
	StartCapture(req StartRequest) <-chan StartReply
	StopCapture() <-chan struct{}
	Events() <-chan EngineEvent
}

// MixEngine acquires up to two live sources, sums them into one stream,
// and emits encoded chunks on a fixed cadence.
type MixEngine struct {
	mu      sync.Mutex
	running bool

	cancel   context.CancelFunc
	sources  []Source
	events   chan EngineEvent
	finalize chan struct{}
	stopped  chan struct{}
	release  *sync.Once

	ambient *pcmAccum
	local   *pcmAccum
	active  int
}

func NewMixEngine() *MixEngine {
	return &MixEngine{}
}

// pcmAccum collects samples from one source between cadence ticks.
type pcmAccum struct {
	mu      sync.Mutex
	samples []int16
}

func (a *pcmAccum) append(s []int16) {
	a.mu.Lock()
	a.samples = append(a.samples, s...)
	a.mu.Unlock()
}

func (a *pcmAccum) take() []int16 {
	a.mu.Lock()
	out := a.samples
	a.samples = nil
	a.mu.Unlock()
	return out
}

func (e *MixEngine) StartCapture(req StartRequest) <-chan StartReply {
	reply := make(chan StartReply, 1)
	go func() {
		reply <- e.start(req)
	}()
	return reply
}

func (e *MixEngine) start(req StartRequest) StartReply {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return StartReply{Err: errors.New("engine already capturing")}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Each acquisition is isolated: one failing must not abort the other.
	var hasAmbient, hasLocal bool
	var opened []Source
	if req.Ambient != nil {
		if err := req.Ambient.Open(ctx); err != nil {
			log.Warn().Err(err).Str("module", "capture.engine").Msg("ambient source unavailable")
		} else {
			hasAmbient = true
			opened = append(opened, req.Ambient)
		}
	}
	if req.Local != nil {
		if err := req.Local.Open(ctx); err != nil {
			log.Warn().Err(err).Str("module", "capture.engine").Msg("local source unavailable")
		} else {
			hasLocal = true
			opened = append(opened, req.Local)
		}
	}
	if !hasAmbient && !hasLocal {
		cancel()
		return StartReply{Err: ErrNoAudioSource}
	}

	enc, err := selectEncoder(nil)
	if err != nil {
		for _, s := range opened {
			_ = s.Close()
		}
		cancel()
		return StartReply{Err: err}
	}

	cadence := req.Cadence
	if cadence <= 0 {
		cadence = time.Second
	}

	e.cancel = cancel
	e.sources = opened
	e.events = make(chan EngineEvent, 8)
	e.finalize = make(chan struct{})
	e.stopped = make(chan struct{})
	e.release = &sync.Once{}
	e.ambient = &pcmAccum{}
	e.local = &pcmAccum{}
	e.active = 0

	if hasAmbient {
		e.active++
		go e.pump(req.Ambient, e.ambient)
	}
	if hasLocal {
		e.active++
		go e.pump(req.Local, e.local)
	}
	go e.segment(enc, cadence)

	e.running = true
	log.Info().Str("module", "capture.engine").Bool("ambient", hasAmbient).Bool("local", hasLocal).Msg("capture started")
	return StartReply{HasAmbient: hasAmbient, HasLocal: hasLocal}
}

// pump reads one source into its accumulator until the source ends.
func (e *MixEngine) pump(src Source, acc *pcmAccum) {
	buf := make([]int16, 1600)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			s := make([]int16, n)
			copy(s, buf[:n])
			acc.append(s)
		}
		if err != nil {
			e.sourceEnded(src, err)
			return
		}
	}
}

func (e *MixEngine) sourceEnded(src Source, err error) {
	e.mu.Lock()
	stopping := !e.running
	e.active--
	dead := e.active == 0
	events := e.events
	e.mu.Unlock()

	if stopping {
		return
	}
	log.Warn().Err(err).Str("module", "capture.engine").Str("source", src.Name()).Msg("source ended")
	if dead {
		// zero working sources left mid-recording is unrecoverable
		select {
		case events <- EngineEvent{Kind: EngineFatal, Err: errors.New("all audio sources lost")}:
		default:
		}
	}
}

// segment cuts the mixed stream on the cadence and emits each chunk the
// moment it completes. On finalize it emits the partial tail first.
func (e *MixEngine) segment(enc Encoder, cadence time.Duration) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.emit(enc)
		case <-e.finalize:
			e.emit(enc)
			e.releaseAll()
			close(e.events)
			close(e.stopped)
			return
		}
	}
}

func (e *MixEngine) emit(enc Encoder) {
	amb := e.ambient.take()
	loc := e.local.take()
	if len(amb) == 0 && len(loc) == 0 {
		return
	}

	mixed := mixPCM(amb, loc, 1.0, 1.0)
	data, err := enc.Encode(mixed, captureSampleRate)
	if err != nil {
		log.Error().Err(err).Str("module", "capture.engine").Msg("chunk encode failed")
		return
	}

	chunk := Chunk{
		Data:      base64.StdEncoding.EncodeToString(data),
		MimeType:  enc.MimeType(),
		Timestamp: time.Now(),
	}
	select {
	case e.events <- EngineEvent{Kind: EngineChunk, Chunk: chunk}:
	default:
		log.Warn().Str("module", "capture.engine").Msg("chunk consumer behind, event queued late")
		e.events <- EngineEvent{Kind: EngineChunk, Chunk: chunk}
	}
}

// releaseAll closes every acquired handle unconditionally; one failed
// release never skips the rest.
func (e *MixEngine) releaseAll() {
	e.release.Do(func() {
		for _, s := range e.sources {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Str("module", "capture.engine").Str("source", s.Name()).Msg("source release failed")
			}
		}
		e.cancel()
	})
}

func (e *MixEngine) StopCapture() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		e.mu.Lock()
		if !e.running {
			e.mu.Unlock()
			return
		}
		e.running = false
		finalize := e.finalize
		stopped := e.stopped
		e.mu.Unlock()

		close(finalize)
		select {
		case <-stopped:
		case <-time.After(stopGrace):
			// segmenter is stuck; release anyway so no handle leaks
			e.releaseAll()
		}
		log.Info().Str("module", "capture.engine").Msg("capture stopped")
	}()
	return done
}

func (e *MixEngine) Events() <-chan EngineEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}
