package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const presenceInterval = time.Second

func (ctl *Controller) writePump(ctx context.Context, c *pageConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "bridge").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "bridge").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *pageConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "bridge").Msg("bridge connection closed")
				return
			}
			ctl.handleMessage(ctx, c, data)
		}
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, c *pageConn, data []byte) {
	var req pageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("bad page json")
		return
	}

	switch req.Type {
	case "ping":
		sendJSON(c, pongMessage{Type: "pong", Installed: true})

	case "start_recording":
		res, err := ctl.Orch.Start(ctx, req.TargetID)
		resp := startResult{
			Type:       "start_recording_result",
			Success:    err == nil,
			HasAmbient: res.HasAmbient,
			HasLocal:   res.HasLocal,
		}
		if err != nil {
			resp.Error = err.Error()
		}
		sendJSON(c, resp)

	case "stop_recording":
		err := ctl.Orch.Stop(ctx)
		resp := stopResult{Type: "stop_recording_result", Success: err == nil}
		if err != nil {
			resp.Error = err.Error()
		}
		sendJSON(c, resp)

	case "get_status":
		st := ctl.Orch.Status()
		sendJSON(c, statusResult{
			Type:        "status",
			IsRecording: st.IsRecording,
			IsPaused:    st.IsPaused,
			Installed:   true,
		})

	default:
		log.Warn().Str("module", "bridge").Str("type", req.Type).Msg("unknown page message")
	}
}

// announcePresence repeats the capture_ready handshake so a page that
// finishes loading after the bridge still discovers it.
func (ctl *Controller) announcePresence(ctx context.Context, c *pageConn) {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()
	for i := 0; i < presenceAnnouncements; i++ {
		sendJSON(c, presenceMessage{Type: "capture_ready", Installed: true})
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sendJSON(c *pageConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
