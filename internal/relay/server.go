package relay

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/config"
	"github.com/calltap/calltap/internal/stt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server terminates carrier media streams and forwards their audio to the
// speech recognizer, one upstream connection per call.
type Server struct {
	cfg      *config.RelayConfig
	registry *Registry
	dialer   stt.Dialer
}

func NewServer(cfg *config.RelayConfig, dialer stt.Dialer) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		dialer:   dialer,
	}
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) SetupRouter(ctx context.Context, mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.POST("/call/:carrier", s.handleWebhook)
	r.GET("/stream/:carrier", func(c *gin.Context) {
		s.handleStream(ctx, c)
	})

	log.Info().Str("module", "relay.server").Str("stream_url", s.cfg.StreamURL).Msg("router setup")
	return r
}

// handleWebhook answers inbound call setup with the markup instructing the
// carrier to open its media stream against our streaming endpoint.
func (s *Server) handleWebhook(c *gin.Context) {
	name := c.Param("carrier")
	d, ok := DialectFor(name)
	if !ok {
		c.String(http.StatusNotFound, "unknown carrier")
		return
	}

	contentType, body := d.StreamInstruction(s.cfg.StreamURL + "/" + d.Name())
	log.Info().Str("module", "relay.server").Str("carrier", name).Msg("webhook answered with stream instruction")
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (s *Server) handleStream(ctx context.Context, c *gin.Context) {
	name := c.Param("carrier")
	d, ok := DialectFor(name)
	if !ok {
		c.String(http.StatusNotFound, "unknown carrier")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay.server").Msg("ws upgrade")
		return
	}

	log.Info().Str("module", "relay.server").Str("carrier", name).Msg("new media stream connection")
	s.handleConn(ctx, d, ws)
}
