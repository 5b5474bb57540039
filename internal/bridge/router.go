package bridge

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/capture"
	"github.com/calltap/calltap/internal/config"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, mode string, cfg *config.CaptureConfig, orch *capture.Orchestrator) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CalltapSessions", store))
	r.Use(ClientTokenMiddleware())

	ctl := NewController(orch)
	r.GET("/ws/bridge", func(c *gin.Context) {
		ctl.HandleBridge(ctx, c)
	})

	log.Info().Str("module", "bridge.router").Msg("router setup")
	return r
}
