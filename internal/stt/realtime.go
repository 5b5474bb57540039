package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNotReady = errors.New("live session not ready")

// RealtimeDialer speaks the realtime streaming-recognition protocol:
// token auth on dial, base64 audio_data messages out, partial/final
// transcripts tagged by message_type in.
type RealtimeDialer struct {
	URL        string
	Token      string
	SampleRate int
	Encoding   string
}

func (d *RealtimeDialer) Dial(ctx context.Context) (LiveSession, error) {
	url := fmt.Sprintf("%s?sample_rate=%d&encoding=%s", d.URL, d.SampleRate, d.Encoding)
	header := http.Header{}
	header.Set("Authorization", d.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial recognizer: %w", err)
	}

	s := &realtimeSession{
		conn:    conn,
		results: make(chan Result, 16),
	}
	go s.readLoop()
	return s, nil
}

type realtimeSession struct {
	conn    *websocket.Conn
	results chan Result

	ready  atomic.Bool
	wmu    sync.Mutex
	once   sync.Once
	closed atomic.Bool
}

type audioMessage struct {
	AudioData string `json:"audio_data"`
}

type terminateMessage struct {
	TerminateSession bool `json:"terminate_session"`
}

type serverMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

func (s *realtimeSession) SendAudio(payload string) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	return s.writeJSON(audioMessage{AudioData: payload})
}

func (s *realtimeSession) Ready() bool { return s.ready.Load() }

func (s *realtimeSession) Terminate() error {
	s.ready.Store(false)
	return s.writeJSON(terminateMessage{TerminateSession: true})
}

func (s *realtimeSession) Results() <-chan Result { return s.results }

func (s *realtimeSession) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.ready.Store(false)
		_ = s.conn.Close()
	})
}

func (s *realtimeSession) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *realtimeSession) readLoop() {
	defer close(s.results)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				log.Warn().Err(err).Str("module", "stt.realtime").Msg("recognizer read error")
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "stt.realtime").Msg("bad recognizer json")
			continue
		}

		switch msg.MessageType {
		case "SessionBegins":
			s.ready.Store(true)
			log.Info().Str("module", "stt.realtime").Msg("recognizer session open")
		case "PartialTranscript":
			if msg.Text != "" {
				s.push(Result{Text: msg.Text, Final: false})
			}
		case "FinalTranscript":
			if msg.Text != "" {
				s.push(Result{Text: msg.Text, Final: true})
			}
		case "SessionTerminated":
			log.Info().Str("module", "stt.realtime").Msg("recognizer session terminated")
			return
		default:
			log.Debug().Str("module", "stt.realtime").Str("type", msg.MessageType).Msg("unhandled recognizer message")
		}
	}
}

func (s *realtimeSession) push(r Result) {
	select {
	case s.results <- r:
	default:
		// consumer is behind; drop rather than block the read loop
	}
}
