package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"chat-relay/internal/relay"
)

// statelessSession is the shared session key for the request/response
// entry point, which has no connection identity to derive one from.
const statelessSession = "web-user-001"

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Message string        `json:"message,omitempty"`
	Status  string        `json:"status,omitempty"`
	Error   string        `json:"error,omitempty"`
	PixData *statelessPix `json:"pix_data,omitempty"`
}

type statelessPix struct {
	PixCopiaCola string `json:"pix_copia_cola"`
	QRCodeURL    string `json:"qr_code_url"`
	Valor        string `json:"valor"`
	Produto      string `json:"produto"`
}

// ServeChatMessage is the stateless request/response entry point. It runs
// the same orchestrator contract as the WebSocket path but collapses the
// event stream into a single body: the first text-bearing event drives
// message/status, and a payment instrument produced by the flow rides
// along as an optional pix_data block.
func (g *Gateway) ServeChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "Mensagem é obrigatória"})
		return
	}
	g.countInbound("http")

	if g.overLimit(r.Context(), statelessSession) {
		writeJSON(w, http.StatusTooManyRequests, chatResponse{Error: "Muitas mensagens. Aguarde um instante."})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), g.handleTimeout)
	defer cancel()
	events := g.handler.Handle(ctx, relay.Message{Text: req.Message, SessionID: statelessSession})

	resp := chatResponse{}
	status := http.StatusOK
	for _, ev := range events {
		g.countEvent(ev.EventName())
		switch e := ev.(type) {
		case relay.BotMessage:
			if resp.Message == "" && resp.Error == "" {
				resp.Message = e.Text
				resp.Status = "success"
			}
		case relay.BotError:
			if resp.Message == "" && resp.Error == "" {
				resp.Error = e.Reason
				status = http.StatusInternalServerError
			}
		case relay.PixData:
			resp.PixData = &statelessPix{
				PixCopiaCola: e.QRText,
				QRCodeURL:    e.QRImage,
				Valor:        e.AmountReais,
				Produto:      e.Product,
			}
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
