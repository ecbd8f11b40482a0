package relay

// Event is one outbound item produced by handling an inbound message.
// Events of a single Handle call must reach the client in slice order.
type Event interface {
	// EventName is the wire-level event name the gateway emits.
	EventName() string
}

// BotMessage carries user-visible reply text.
type BotMessage struct {
	Text string
}

// EventName satisfies Event.
func (BotMessage) EventName() string { return "bot-response" }

// PixData carries the machine-readable payment instrument for rendering.
type PixData struct {
	QRText      string
	QRImage     string
	AmountReais string
	Product     string
}

// EventName satisfies Event.
func (PixData) EventName() string { return "pix-data" }

// BotError reports a handling failure with a generic, non-leaking reason.
type BotError struct {
	Reason string
}

// EventName satisfies Event.
func (BotError) EventName() string { return "bot-error" }
