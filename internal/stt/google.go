package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
)

// GoogleDialer opens streaming-recognize sessions against Cloud Speech.
// Credentials come from the ambient service account; see ADC docs.
type GoogleDialer struct {
	SampleRate int
	Language   string
}

func (d *GoogleDialer) Dial(ctx context.Context) (LiveSession, error) {
	lang := d.Language
	if lang == "" {
		lang = "en-US"
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("streaming recognize: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_MULAW,
					SampleRateHertz: int32(d.SampleRate),
					LanguageCode:    lang,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	s := &googleSession{
		client:  client,
		stream:  stream,
		results: make(chan Result, 16),
	}
	s.ready.Store(true)
	go s.readLoop()
	return s, nil
}

type googleSession struct {
	client  *speech.Client
	stream  speechpb.Speech_StreamingRecognizeClient
	results chan Result

	ready atomic.Bool
	wmu   sync.Mutex
	once  sync.Once
}

func (s *googleSession) SendAudio(payload string) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: raw,
		},
	})
}

func (s *googleSession) Ready() bool { return s.ready.Load() }

func (s *googleSession) Terminate() error {
	s.ready.Store(false)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.stream.CloseSend()
}

func (s *googleSession) Results() <-chan Result { return s.results }

func (s *googleSession) Close() {
	s.once.Do(func() {
		s.ready.Store(false)
		_ = s.client.Close()
	})
}

func (s *googleSession) readLoop() {
	defer close(s.results)
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "stt.google").Msg("recognizer stream error")
			return
		}
		for _, res := range resp.Results {
			if len(res.Alternatives) == 0 {
				continue
			}
			select {
			case s.results <- Result{Text: res.Alternatives[0].Transcript, Final: res.IsFinal}:
			default:
			}
		}
	}
}
