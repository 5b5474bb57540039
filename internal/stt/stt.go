package stt

import "context"

// Result is one transcript fragment delivered by the recognizer.
type Result struct {
	Text  string
	Final bool
}

// LiveSession is one open streaming-recognition connection.
// Owned by the caller; the caller must Close() it.
type LiveSession interface {
	// SendAudio forwards one base64-encoded audio message upstream.
	SendAudio(payload string) error
	// Ready reports whether the session accepts audio right now.
	Ready() bool
	// Terminate sends the explicit end-of-session signal. The connection
	// stays open until Close so trailing results can still arrive.
	Terminate() error
	Results() <-chan Result
	Close()
}

// Dialer opens live sessions against a recognition backend.
type Dialer interface {
	Dial(ctx context.Context) (LiveSession, error)
}
