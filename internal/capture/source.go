package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog/log"
)

// captureSampleRate is the PCM rate both sources are opened at.
const captureSampleRate = 16000

// Source is one live mono PCM input. Read fills buf with 16-bit samples
// and blocks until at least one is available.
type Source interface {
	Name() string
	Open(ctx context.Context) error
	Read(buf []int16) (int, error)
	Close() error
}

// AmbientResolver turns a capture target id into its ambient source.
// Resolution is best-effort; callers treat failure as "no ambient".
type AmbientResolver interface {
	Resolve(targetID string) (Source, error)
}

// execSource shells out to ffmpeg and reads s16le PCM off its stdout.
type execSource struct {
	name string
	args []string

	cmd *exec.Cmd
	out io.ReadCloser
}

func (s *execSource) Name() string { return s.name }

func (s *execSource) Open(ctx context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", s.args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s capture: %w", s.name, err)
	}
	s.cmd = cmd
	s.out = out
	log.Info().Str("module", "capture.source").Str("source", s.name).Msg("source opened")
	return nil
}

func (s *execSource) Read(buf []int16) (int, error) {
	if s.out == nil {
		return 0, io.EOF
	}
	raw := make([]byte, len(buf)*2)
	n, err := io.ReadAtLeast(s.out, raw, 2)
	if err != nil {
		return 0, err
	}
	n -= n % 2
	for i := 0; i < n/2; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return n / 2, err
}

func (s *execSource) Close() error {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	if s.out != nil {
		_ = s.out.Close()
	}
	s.cmd = nil
	s.out = nil
	return nil
}

func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// NewMicSource captures the local microphone with noise suppression and
// gain normalization applied in the capture graph.
func NewMicSource(device string) Source {
	if device == "" {
		device = "default"
	}
	return &execSource{
		name: "local",
		args: []string{
			"-f", inputFormat(),
			"-i", device,
			"-af", "highpass=f=80,afftdn,loudnorm",
			"-ac", "1",
			"-ar", fmt.Sprint(captureSampleRate),
			"-f", "s16le",
			"-loglevel", "error",
			"pipe:1",
		},
	}
}

// LoopbackResolver resolves a target id to the monitor (loopback) device
// playing that target's audio.
type LoopbackResolver struct{}

func (LoopbackResolver) Resolve(targetID string) (Source, error) {
	if targetID == "" {
		return nil, fmt.Errorf("no capture target")
	}
	return &execSource{
		name: "ambient",
		args: []string{
			"-f", inputFormat(),
			"-i", targetID,
			"-ac", "1",
			"-ar", fmt.Sprint(captureSampleRate),
			"-f", "s16le",
			"-loglevel", "error",
			"pipe:1",
		},
	}, nil
}
