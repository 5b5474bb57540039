package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	Capture CaptureConfig `mapstructure:"capture"`
	Relay   RelayConfig   `mapstructure:"relay"`
	STT     STTConfig     `mapstructure:"stt"`
}

// CaptureConfig tunes the local capture daemon.
type CaptureConfig struct {
	Port         int           `mapstructure:"port"`
	ChunkCadence time.Duration `mapstructure:"chunk_cadence"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	MicDevice    string        `mapstructure:"mic_device"`
	Secret       string        `mapstructure:"secret"`
}

// RelayConfig tunes the telephony relay server.
type RelayConfig struct {
	Port int `mapstructure:"port"`
	// StreamURL is the public wss:// address carriers are told to dial back.
	StreamURL      string `mapstructure:"stream_url"`
	FlushThreshold int    `mapstructure:"flush_threshold"`
}

type STTConfig struct {
	Provider   string `mapstructure:"provider"` // "realtime" or "google"
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("capture.port", 8090)
	v.SetDefault("capture.chunk_cadence", "1s")
	v.SetDefault("capture.start_timeout", "15s")
	v.SetDefault("capture.stop_timeout", "10s")
	v.SetDefault("capture.mic_device", "default")
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.stream_url", "wss://localhost:8080/stream")
	v.SetDefault("relay.flush_threshold", 480)
	v.SetDefault("stt.provider", "realtime")
	v.SetDefault("stt.url", "wss://api.assemblyai.com/v2/realtime/ws")
	v.SetDefault("stt.sample_rate", 8000)
	v.SetDefault("stt.encoding", "pcm_mulaw")

	v.SetEnvPrefix("calltap")
	v.AutomaticEnv()
	if tok := os.Getenv("STT_TOKEN"); tok != "" {
		v.Set("stt.token", tok)
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
