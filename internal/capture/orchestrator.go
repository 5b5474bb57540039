package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRecording = errors.New("AlreadyRecording")
	ErrStartTimeout     = errors.New("StartTimeout")
	// ErrStartAborted is returned when a stop lands while the start is
	// still in flight; the slot resolves to Idle with nothing recorded.
	ErrStartAborted = errors.New("StartAborted")
)

// teardownGrace delays engine teardown after a stop so an in-flight chunk
// still reaches listeners.
const teardownGrace = 2 * time.Second

// EngineFactory provisions the mixing engine. Provisioning is idempotent
// at the orchestrator: an engine that already exists is reused.
type EngineFactory func() Engine

type StartResult struct {
	HasAmbient bool
	HasLocal   bool
}

type Status struct {
	State       State
	IsRecording bool
	IsPaused    bool
}

type Options struct {
	StartTimeout time.Duration
	StopTimeout  time.Duration
	ChunkCadence time.Duration
	// LocalSource builds the microphone source for a new session.
	LocalSource func() Source
}

// Orchestrator is the single-slot recording session manager. There is one
// logical recording slot in the whole process; a second Start while one
// session is in flight is rejected, not queued.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	session *Session
	engine  Engine

	factory  EngineFactory
	resolver AmbientResolver
	opts     Options

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

func NewOrchestrator(factory EngineFactory, resolver AmbientResolver, opts Options) *Orchestrator {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 15 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.ChunkCadence <= 0 {
		opts.ChunkCadence = time.Second
	}
	if opts.LocalSource == nil {
		opts.LocalSource = func() Source { return NewMicSource("") }
	}
	return &Orchestrator{
		state:     StateIdle,
		factory:   factory,
		resolver:  resolver,
		opts:      opts,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a broadcast listener and returns its unsubscribe.
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.lmu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = l
	o.lmu.Unlock()
	return func() {
		o.lmu.Lock()
		delete(o.listeners, id)
		o.lmu.Unlock()
	}
}

// Start acquires sources for targetID and begins recording. Ambient
// acquisition is best-effort; only zero working sources fails the start.
func (o *Orchestrator) Start(ctx context.Context, targetID string) (StartResult, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return StartResult{}, ErrAlreadyRecording
	}
	o.state = StateStarting
	o.session = &Session{ID: uuid.NewString(), TargetID: targetID}
	if o.engine == nil {
		o.engine = o.factory()
	}
	engine := o.engine
	o.mu.Unlock()

	var ambient Source
	if src, err := o.resolver.Resolve(targetID); err != nil {
		log.Warn().Err(err).Str("module", "capture.orch").Str("target", targetID).Msg("ambient acquisition failed, recording local-only")
	} else {
		ambient = src
	}

	req := StartRequest{
		Ambient: ambient,
		Local:   o.opts.LocalSource(),
		Cadence: o.opts.ChunkCadence,
	}

	replyCh := engine.StartCapture(req)
	select {
	case rep := <-replyCh:
		if rep.Err != nil {
			o.fail()
			return StartResult{}, rep.Err
		}
		o.mu.Lock()
		if o.state != StateStarting || o.session == nil {
			// a Stop landed while the engine was starting; the engine
			// that just came up has no session to serve
			o.mu.Unlock()
			o.releaseEngine(engine)
			return StartResult{}, ErrStartAborted
		}
		o.state = StateRecording
		o.session.HasAmbient = rep.HasAmbient
		o.session.HasLocal = rep.HasLocal
		o.mu.Unlock()

		go o.pumpEvents(engine.Events())
		o.eachListener(func(l Listener) { l.OnRecordingStarted(rep.HasAmbient, rep.HasLocal) })
		log.Info().Str("module", "capture.orch").Str("target", targetID).Bool("ambient", rep.HasAmbient).Bool("local", rep.HasLocal).Msg("recording started")
		return StartResult{HasAmbient: rep.HasAmbient, HasLocal: rep.HasLocal}, nil

	case <-time.After(o.opts.StartTimeout):
		// the state machine still resolves; never left hanging in Starting
		o.fail()
		go o.reapLateStart(replyCh, engine)
		return StartResult{}, ErrStartTimeout

	case <-ctx.Done():
		o.fail()
		go o.reapLateStart(replyCh, engine)
		return StartResult{}, ctx.Err()
	}
}

// Stop ends the active session. It never hangs and never fails: an engine
// that misses the stop deadline is abandoned and the slot freed anyway.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return nil
	}
	// Starting sessions are stoppable too
	o.state = StateStopping
	engine := o.engine
	o.mu.Unlock()

	if engine != nil {
		select {
		case <-engine.StopCapture():
		case <-time.After(o.opts.StopTimeout):
			log.Warn().Str("module", "capture.orch").Msg("engine stop timed out, forcing idle")
		case <-ctx.Done():
		}
	}

	o.mu.Lock()
	o.state = StateIdle
	o.session = nil
	o.mu.Unlock()

	o.eachListener(func(l Listener) { l.OnRecordingStopped() })
	o.scheduleTeardown()
	log.Info().Str("module", "capture.orch").Msg("recording stopped")
	return nil
}

// Status is a pure read; it has no side effects and cannot fail.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		State:       o.state,
		IsRecording: o.state == StateRecording,
		IsPaused:    false,
	}
}

// fail resolves an unrecoverable start through Failed back to Idle. The
// engine slot is cleared so the next Start provisions a fresh one instead
// of colliding with an engine mid-failure.
func (o *Orchestrator) fail() {
	o.mu.Lock()
	o.state = StateFailed
	o.session = nil
	o.engine = nil
	o.state = StateIdle
	o.mu.Unlock()
}

// releaseEngine stops an engine whose session is gone so no source handle
// outlives the slot.
func (o *Orchestrator) releaseEngine(engine Engine) {
	select {
	case <-engine.StopCapture():
	case <-time.After(o.opts.StopTimeout):
		log.Warn().Str("module", "capture.orch").Msg("orphaned engine stop timed out")
	}
}

// reapLateStart waits out an abandoned start. A source that comes up
// after the timeout (a slow device spawn) still gets released.
func (o *Orchestrator) reapLateStart(reply <-chan StartReply, engine Engine) {
	if rep := <-reply; rep.Err == nil {
		log.Warn().Str("module", "capture.orch").Msg("engine started after abandon, releasing")
		o.releaseEngine(engine)
	}
}

// pumpEvents relays engine output verbatim: chunks fan out untouched, a
// fatal error ends the session with no automatic restart.
func (o *Orchestrator) pumpEvents(events <-chan EngineEvent) {
	if events == nil {
		return
	}
	for ev := range events {
		switch ev.Kind {
		case EngineChunk:
			chunk := ev.Chunk
			o.eachListener(func(l Listener) { l.OnAudioChunk(chunk) })
		case EngineFatal:
			o.mu.Lock()
			recording := o.state == StateRecording
			var engine Engine
			if recording {
				o.state = StateIdle
				o.session = nil
				engine = o.engine
				o.engine = nil
			}
			o.mu.Unlock()
			if recording {
				reason := ev.Err.Error()
				log.Error().Str("module", "capture.orch").Str("reason", reason).Msg("engine fatal error")
				o.eachListener(func(l Listener) { l.OnRecordingError(reason) })
				if engine != nil {
					o.releaseEngine(engine)
				}
			}
		}
	}
}

func (o *Orchestrator) scheduleTeardown() {
	time.AfterFunc(teardownGrace, func() {
		o.mu.Lock()
		if o.state == StateIdle {
			o.engine = nil
		}
		o.mu.Unlock()
	})
}

func (o *Orchestrator) eachListener(fn func(Listener)) {
	o.lmu.RLock()
	defer o.lmu.RUnlock()
	for _, l := range o.listeners {
		fn(l)
	}
}
