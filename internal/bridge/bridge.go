package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calltap/calltap/internal/capture"
)

var ErrBackpressure = errors.New("backpressure")

// presenceAnnouncements is how many unprompted capture_ready messages a
// fresh connection gets, presenceInterval apart.
const presenceAnnouncements = 3

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the page bridge: it translates page messages into
// orchestrator calls and orchestrator broadcasts back into page events.
type Controller struct {
	Orch *capture.Orchestrator
}

func NewController(orch *capture.Orchestrator) *Controller {
	return &Controller{Orch: orch}
}

type pageConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *pageConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *pageConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *Controller) HandleBridge(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "bridge").Str("client", token).Msg("new bridge connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("ws upgrade")
		return
	}

	conn := &pageConn{
		conn: ws,
		send: make(chan []byte, 64),
	}

	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := ctl.Orch.Subscribe(&connListener{conn: conn})

	go ctl.writePump(ctx, conn)
	go ctl.announcePresence(ctx, conn)
	ctl.readPump(ctx, conn)

	unsubscribe()
	cancel()
}

// connListener forwards orchestrator broadcasts onto one page connection.
type connListener struct {
	conn *pageConn
}

func (l *connListener) OnRecordingStarted(hasAmbient, hasLocal bool) {
	sendJSON(l.conn, startedEvent{Type: "recording_started", HasAmbient: hasAmbient, HasLocal: hasLocal})
}

func (l *connListener) OnRecordingStopped() {
	sendJSON(l.conn, stoppedEvent{Type: "recording_stopped"})
}

func (l *connListener) OnRecordingError(reason string) {
	sendJSON(l.conn, errorEvent{Type: "recording_error", Error: reason})
}

func (l *connListener) OnAudioChunk(chunk capture.Chunk) {
	sendJSON(l.conn, chunkEvent{
		Type:      "audio_chunk",
		Data:      chunk.Data,
		MimeType:  chunk.MimeType,
		Timestamp: chunk.Timestamp.UnixMilli(),
	})
}
