package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"chat-relay/internal/dialogue"
	"chat-relay/internal/payment"
)

type fakeDialogue struct {
	reply     *dialogue.Reply
	sendErr   error
	order     *dialogue.PendingOrder
	lookupErr error

	sendCalls   int
	lookupCalls int
}

func (f *fakeDialogue) Send(ctx context.Context, text, sessionID string) (*dialogue.Reply, error) {
	f.sendCalls++
	return f.reply, f.sendErr
}

func (f *fakeDialogue) LookupOrder(ctx context.Context, sessionID string) (*dialogue.PendingOrder, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.order, nil
}

type fakePayments struct {
	inst      *payment.Instrument
	createErr error

	calls   int
	lastReq payment.CreateRequest
}

func (f *fakePayments) Create(ctx context.Context, req payment.CreateRequest) (*payment.Instrument, error) {
	f.calls++
	f.lastReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.inst, nil
}

func newRelay(d *fakeDialogue, p *fakePayments) *Relay {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(d, p, nil, logger)
}

func TestHandlePlainReply(t *testing.T) {
	d := &fakeDialogue{reply: &dialogue.Reply{Outcome: dialogue.OutcomePlain, Text: "Temos baião de dois hoje!"}}
	p := &fakePayments{}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "cardápio", SessionID: "web-1"})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	msg, ok := events[0].(BotMessage)
	if !ok {
		t.Fatalf("expected BotMessage, got %T", events[0])
	}
	if msg.Text != "Temos baião de dois hoje!" {
		t.Errorf("reply text changed: %q", msg.Text)
	}
	if p.calls != 0 || d.lookupCalls != 0 {
		t.Error("no downstream calls expected for a plain reply")
	}
}

func TestHandlePaymentFlowOrdering(t *testing.T) {
	d := &fakeDialogue{
		reply: &dialogue.Reply{Outcome: dialogue.OutcomePaymentIntent, Text: "GERAR_PIX:"},
		order: &dialogue.PendingOrder{
			Product:     "Baião de Dois Completo",
			AmountCents: 2890,
		},
	}
	p := &fakePayments{inst: &payment.Instrument{
		QRText:      "copy-code",
		QRImage:     "https://qr.example/img.png",
		AmountReais: "28.90",
		Product:     "Baião de Dois Completo",
	}}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "quero pagar", SessionID: "web-1"})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	msg, ok := events[0].(BotMessage)
	if !ok {
		t.Fatalf("first event must be BotMessage, got %T", events[0])
	}
	if !strings.Contains(msg.Text, "Baião de Dois Completo") || !strings.Contains(msg.Text, "28.90") {
		t.Errorf("confirmation must carry product and amount, got %q", msg.Text)
	}
	pix, ok := events[1].(PixData)
	if !ok {
		t.Fatalf("second event must be PixData, got %T", events[1])
	}
	if pix.Product != "Baião de Dois Completo" || pix.AmountReais != "28.90" {
		t.Errorf("pix data mismatch: %+v", pix)
	}
	if pix.QRText != "copy-code" {
		t.Errorf("QRText = %q", pix.QRText)
	}
}

func TestHandlePaymentUsesOrderCustomerFields(t *testing.T) {
	d := &fakeDialogue{
		reply: &dialogue.Reply{Outcome: dialogue.OutcomePaymentIntent},
		order: &dialogue.PendingOrder{
			Product:       "Frango ao Molho Pardo com Angu",
			AmountCents:   2650,
			CustomerName:  "Maria",
			CustomerTaxID: "52998224725",
		},
	}
	p := &fakePayments{inst: &payment.Instrument{QRText: "x", AmountReais: "26.50"}}

	newRelay(d, p).Handle(context.Background(), Message{Text: "pagar", SessionID: "web-9"})

	if p.lastReq.CustomerName != "Maria" {
		t.Errorf("customer name = %q", p.lastReq.CustomerName)
	}
	if p.lastReq.CustomerTaxID != "52998224725" {
		t.Errorf("customer tax id = %q", p.lastReq.CustomerTaxID)
	}
	// The session id stands in for the phone when the order carries none.
	if p.lastReq.CustomerPhone != "web-9" {
		t.Errorf("customer phone = %q", p.lastReq.CustomerPhone)
	}
}

func TestHandleDialogueUnreachableFailsFast(t *testing.T) {
	d := &fakeDialogue{sendErr: dialogue.ErrUnavailable}
	p := &fakePayments{}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "oi", SessionID: "web-1"})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].(BotError); !ok {
		t.Fatalf("expected BotError, got %T", events[0])
	}
	if d.lookupCalls != 0 || p.calls != 0 {
		t.Error("downstream calls must not happen when dialogue is unreachable")
	}
}

func TestHandleDialogueRejected(t *testing.T) {
	d := &fakeDialogue{sendErr: dialogue.ErrRejected}
	events := newRelay(d, &fakePayments{}).Handle(context.Background(), Message{Text: "oi", SessionID: "web-1"})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	botErr, ok := events[0].(BotError)
	if !ok {
		t.Fatalf("expected BotError, got %T", events[0])
	}
	if botErr.Reason != msgGenericError {
		t.Errorf("reason = %q", botErr.Reason)
	}
}

func TestHandleOrderNotFoundEmitsError(t *testing.T) {
	d := &fakeDialogue{
		reply:     &dialogue.Reply{Outcome: dialogue.OutcomePaymentIntent},
		lookupErr: dialogue.ErrOrderNotFound,
	}
	p := &fakePayments{}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "pagar", SessionID: "web-1"})

	// A missing order surfaces as an explicit error instead of silence.
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].(BotError); !ok {
		t.Fatalf("expected BotError, got %T", events[0])
	}
	if p.calls != 0 {
		t.Error("payment must not run without an order")
	}
}

func TestHandlePaymentFailureEmitsFixedMessage(t *testing.T) {
	rawProviderBody := `{"error":"card declined, internal code 42"}`
	d := &fakeDialogue{
		reply: &dialogue.Reply{Outcome: dialogue.OutcomePaymentIntent},
		order: &dialogue.PendingOrder{Product: "Pirarucu à Casaca", AmountCents: 3290},
	}
	p := &fakePayments{createErr: errors.New("abacatepay rejected request: status=500 body=" + rawProviderBody)}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "pagar", SessionID: "web-1"})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	msg, ok := events[0].(BotMessage)
	if !ok {
		t.Fatalf("expected BotMessage, got %T", events[0])
	}
	if msg.Text != msgPixFailed {
		t.Errorf("expected fixed failure string, got %q", msg.Text)
	}
	if strings.Contains(msg.Text, "internal code") {
		t.Error("raw provider error must not leak to the client")
	}
}

func TestHandleEmbeddedPixReply(t *testing.T) {
	d := &fakeDialogue{reply: &dialogue.Reply{
		Outcome: dialogue.OutcomeEmbeddedPix,
		Text:    "Seu PIX está pronto",
		Pix: &dialogue.EmbeddedPix{
			QRText:      "copy-code",
			QRImage:     "data:image/png;base64,xyz",
			Product:     "Virado à Paulista",
			AmountReais: "30.90",
		},
	}}
	p := &fakePayments{}

	events := newRelay(d, p).Handle(context.Background(), Message{Text: "status", SessionID: "web-1"})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	pix, ok := events[0].(PixData)
	if !ok {
		t.Fatalf("first event must be PixData, got %T", events[0])
	}
	if pix.QRText != "copy-code" || pix.AmountReais != "30.90" {
		t.Errorf("pix data mismatch: %+v", pix)
	}
	msg, ok := events[1].(BotMessage)
	if !ok {
		t.Fatalf("second event must be BotMessage, got %T", events[1])
	}
	if msg.Text != "Seu PIX está pronto" {
		t.Errorf("text = %q", msg.Text)
	}
	if p.calls != 0 || d.lookupCalls != 0 {
		t.Error("embedded pix must not trigger the payment flow")
	}
}
