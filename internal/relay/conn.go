package relay

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/stt"
)

// upstreamCloseGrace is how long a terminated recognition connection is
// left open so trailing transcript fragments can still arrive.
const upstreamCloseGrace = 1 * time.Second

// carrierConn is an indirection over *websocket.Conn to ease testing.
type carrierConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// handleConn runs one carrier media stream to completion. Cleanup is
// unconditional: whatever path exits the loop, the upstream connection is
// closed and the call session leaves the registry.
func (s *Server) handleConn(ctx context.Context, d Dialect, conn carrierConn) {
	var sess *CallSession

	defer func() {
		_ = conn.Close()
		if sess != nil {
			s.release(sess, false)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "relay.conn").Str("carrier", d.Name()).Msg("media stream closed")
			return
		}

		ev, err := d.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "relay.conn").Str("carrier", d.Name()).Msg("bad carrier frame")
			continue
		}

		switch ev.Kind {
		case EventConnected:
			log.Info().Str("module", "relay.conn").Str("carrier", d.Name()).Msg("carrier connected")

		case EventStart:
			if sess != nil {
				// one media stream carries one call; a repeated start
				// would orphan the live session
				log.Warn().Str("module", "relay.conn").Str("carrier", d.Name()).Str("call", string(ev.CallID)).Msg("duplicate start event, ignored")
				continue
			}
			sess = s.startCall(ctx, ev)

		case EventMedia:
			if sess == nil {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(ev.Payload)
			if err != nil {
				log.Warn().Err(err).Str("module", "relay.conn").Str("call", string(sess.CallID)).Msg("bad media payload")
				continue
			}
			sess.AppendMedia(raw)

		case EventStop:
			if sess != nil {
				s.release(sess, true)
				sess = nil
			}

		default:
			log.Warn().Str("module", "relay.conn").Str("carrier", d.Name()).Str("type", ev.Type).Msg("unknown carrier event, ignored")
		}
	}
}

func (s *Server) startCall(ctx context.Context, ev Event) *CallSession {
	log.Info().Str("module", "relay.conn").Str("call", string(ev.CallID)).Str("stream", string(ev.StreamID)).Str("format", ev.MediaFormat).Msg("call started")

	upstream, err := s.dialer.Dial(ctx)
	if err != nil {
		// No retry. The session still exists so stop/teardown stay uniform;
		// media frames are dropped until the call ends.
		log.Error().Err(err).Str("module", "relay.conn").Str("call", string(ev.CallID)).Msg("recognizer dial failed")
		upstream = nil
	}

	sess := NewCallSession(ev.CallID, ev.StreamID, upstream, s.cfg.FlushThreshold)
	s.registry.Bind(sess)

	if upstream != nil {
		go s.consumeResults(sess, upstream)
	}
	return sess
}

// consumeResults drains transcript fragments for one call. Current scope
// only logs them; persistence belongs to an external consumer.
func (s *Server) consumeResults(sess *CallSession, up stt.LiveSession) {
	for r := range up.Results() {
		sess.AddTranscript(r.Text)
		log.Info().Str("module", "relay.conn").Str("call", string(sess.CallID)).Bool("final", r.Final).Str("text", r.Text).Msg("transcript")
	}
}

// release flushes the tail on a graceful stop, signals end-of-session
// upstream, closes the upstream after a grace delay, and removes the call
// from the registry.
func (s *Server) release(sess *CallSession, graceful bool) {
	if up := sess.Upstream(); up != nil {
		if graceful {
			if n := sess.Flush(); n > 0 {
				log.Debug().Str("module", "relay.conn").Str("call", string(sess.CallID)).Int("bytes", n).Msg("flushed tail")
			}
			if err := up.Terminate(); err != nil {
				log.Warn().Err(err).Str("module", "relay.conn").Str("call", string(sess.CallID)).Msg("terminate failed")
			}
			time.AfterFunc(upstreamCloseGrace, up.Close)
		} else {
			up.Close()
		}
	}
	s.registry.Unbind(sess.CallID)
	log.Info().Str("module", "relay.conn").Str("call", string(sess.CallID)).Dur("duration", time.Since(sess.StartedAt)).Msg("call released")
}
