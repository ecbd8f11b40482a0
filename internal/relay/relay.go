package relay

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/internal/dialogue"
	"chat-relay/internal/metrics"
	"chat-relay/internal/payment"
)

// User-facing strings. Raw backend/provider errors never end up here; they
// stay in operator logs only.
const (
	msgGenericError   = "Erro ao processar mensagem"
	msgNoPendingOrder = "Nenhum pedido pendente encontrado. Tente novamente."
	msgPixFailed      = "❌ Erro ao gerar PIX. Tente novamente."
	msgPixCreatedTmpl = "✅ *PIX gerado com sucesso!*\n\n📦 %s\n💰 Valor: R$ %s\n\n🔢 *Copia e Cola e QR Code:*"
)

// Message is one inbound chat message.
type Message struct {
	Text      string
	SessionID string
}

// DialogueClient is the conversational backend boundary.
type DialogueClient interface {
	Send(ctx context.Context, text, sessionID string) (*dialogue.Reply, error)
	LookupOrder(ctx context.Context, sessionID string) (*dialogue.PendingOrder, error)
}

// PaymentClient is the payment provider boundary.
type PaymentClient interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Instrument, error)
}

// Relay orchestrates one inbound message into an ordered event sequence.
// It holds no per-session state; session continuity lives in the dialogue
// backend.
type Relay struct {
	logger   *slog.Logger
	dialogue DialogueClient
	payments PaymentClient
	metrics  *metrics.Metrics
}

// New creates a relay orchestrator.
func New(dialogueClient DialogueClient, paymentClient PaymentClient, m *metrics.Metrics, logger *slog.Logger) *Relay {
	return &Relay{
		logger:   logger.With("component", "relay"),
		dialogue: dialogueClient,
		payments: paymentClient,
		metrics:  m,
	}
}

// Handle processes one inbound message and returns the ordered events to
// write back. Every failure is scoped to this call; Handle never panics
// outward and never returns an error, only events.
func (r *Relay) Handle(ctx context.Context, msg Message) []Event {
	reply, err := r.dialogue.Send(ctx, msg.Text, msg.SessionID)
	if err != nil {
		r.logger.Error("dialogue send failed", "session", msg.SessionID, "error", err)
		r.countError("dialogue")
		return []Event{BotError{Reason: msgGenericError}}
	}

	switch reply.Outcome {
	case dialogue.OutcomeEmbeddedPix:
		return []Event{
			PixData{
				QRText:      reply.Pix.QRText,
				QRImage:     reply.Pix.QRImage,
				AmountReais: reply.Pix.AmountReais,
				Product:     reply.Pix.Product,
			},
			BotMessage{Text: reply.Text},
		}
	case dialogue.OutcomePaymentIntent:
		return r.handlePayment(ctx, msg.SessionID)
	default:
		return []Event{BotMessage{Text: reply.Text}}
	}
}

// handlePayment runs the dependent fetch chain: pending order first, then
// the provider call. At most one provider attempt per flow.
func (r *Relay) handlePayment(ctx context.Context, sessionID string) []Event {
	order, err := r.dialogue.LookupOrder(ctx, sessionID)
	if err != nil {
		r.logger.Warn("order lookup failed", "session", sessionID, "error", err)
		r.countError("order_lookup")
		return []Event{BotError{Reason: msgNoPendingOrder}}
	}

	inst, err := r.payments.Create(ctx, payment.CreateRequest{
		Product:       order.Product,
		AmountCents:   order.AmountCents,
		CustomerName:  order.CustomerName,
		CustomerPhone: firstNonEmpty(order.CustomerPhone, sessionID),
		CustomerTaxID: order.CustomerTaxID,
	})
	if err != nil {
		r.logger.Error("pix creation failed", "session", sessionID, "product", order.Product, "error", err)
		r.countError("payment")
		return []Event{BotMessage{Text: msgPixFailed}}
	}

	confirmation := fmt.Sprintf(msgPixCreatedTmpl, order.Product, inst.AmountReais)
	return []Event{
		BotMessage{Text: confirmation},
		PixData{
			QRText:      inst.QRText,
			QRImage:     inst.QRImage,
			AmountReais: inst.AmountReais,
			Product:     inst.Product,
		},
	}
}

func (r *Relay) countError(component string) {
	if r.metrics != nil {
		r.metrics.Errors.WithLabelValues(component).Inc()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
