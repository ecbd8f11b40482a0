package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/internal/relay"
)

const (
	maxInboundBytes = 8 * 1024
	writeTimeout    = 10 * time.Second
)

// inboundFrame is the client-to-server wire shape.
type inboundFrame struct {
	Event string      `json:"event"`
	Data  inboundData `json:"data"`
}

type inboundData struct {
	Message string `json:"message"`
}

// outboundFrame is the server-to-client wire shape.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ServeWS upgrades the request and runs the connection loop. Each
// connection gets its own session key, so the dialogue backend tracks
// per-connection conversation state.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sessionID := "web-" + uuid.NewString()
	g.logger.Info("client connected", "session", sessionID, "remote", r.RemoteAddr)
	defer func() {
		conn.Close()
		g.logger.Info("client disconnected", "session", sessionID)
	}()

	conn.SetReadLimit(maxInboundBytes)

	// Messages are handled serially in the read loop: the ordering
	// guarantee for multi-event flows would not survive concurrent
	// handling on one connection.
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read failed", "session", sessionID, "error", err)
			}
			return
		}
		if frame.Event != "chat-message" || frame.Data.Message == "" {
			continue
		}
		g.countInbound("websocket")

		events := g.process(r.Context(), sessionID, frame.Data.Message)
		for _, ev := range events {
			if err := g.writeEvent(conn, ev); err != nil {
				// Connection is gone; remaining events are discarded, the
				// payment side effects already completed upstream.
				g.logger.Warn("websocket write failed, dropping events", "session", sessionID, "error", err)
				return
			}
		}
	}
}

// process runs one message through the relay. The handle context is
// detached from the connection: a provider call in flight initiates money
// movement and must complete even if the client disconnects.
func (g *Gateway) process(connCtx context.Context, sessionID, text string) []relay.Event {
	if g.overLimit(connCtx, sessionID) {
		return []relay.Event{relay.BotError{Reason: "Muitas mensagens. Aguarde um instante."}}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(connCtx), g.handleTimeout)
	defer cancel()
	return g.handler.Handle(ctx, relay.Message{Text: text, SessionID: sessionID})
}

func (g *Gateway) writeEvent(conn *websocket.Conn, ev relay.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	g.countEvent(ev.EventName())
	return conn.WriteJSON(outboundFrame{
		Event: ev.EventName(),
		Data:  eventPayload(ev),
	})
}

// eventPayload maps relay events onto the wire field names the web client
// renders.
func eventPayload(ev relay.Event) any {
	switch e := ev.(type) {
	case relay.BotMessage:
		return map[string]string{"message": e.Text, "status": "success"}
	case relay.PixData:
		return map[string]string{
			"pix_copia_cola": e.QRText,
			"qr_code_url":    e.QRImage,
			"valor":          e.AmountReais,
			"produto":        e.Product,
		}
	case relay.BotError:
		return map[string]string{"error": e.Reason}
	default:
		return map[string]string{}
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.origins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}
