package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-relay/internal/metrics"
)

// paymentSentinel is the marker prefix the dialogue backend puts on a reply
// to signal that a PIX flow must start. It is decoded here, once, so the
// rest of the system works with a tagged outcome instead of raw text.
const paymentSentinel = "GERAR_PIX:"

var (
	// ErrUnavailable indicates the dialogue backend could not be reached.
	ErrUnavailable = errors.New("dialogue backend unavailable")
	// ErrRejected indicates the backend answered but reported a failure.
	ErrRejected = errors.New("dialogue backend rejected message")
	// ErrOrderNotFound indicates no pending order exists for the session.
	ErrOrderNotFound = errors.New("pending order not found")
)

// Outcome tags what a dialogue reply asks the relay to do.
type Outcome int

const (
	// OutcomePlain carries reply text and nothing else.
	OutcomePlain Outcome = iota
	// OutcomePaymentIntent signals the payment flow must run; the reply
	// text is the sentinel and is not shown to the user.
	OutcomePaymentIntent
	// OutcomeEmbeddedPix carries reply text plus a ready payment payload
	// produced by the backend itself.
	OutcomeEmbeddedPix
)

// Reply is the decoded dialogue backend response.
type Reply struct {
	Outcome Outcome
	Text    string
	Pix     *EmbeddedPix
}

// EmbeddedPix is a payment payload some backend replies carry inline.
type EmbeddedPix struct {
	QRText      string
	QRImage     string
	Product     string
	AmountReais string
}

// PendingOrder is the order state the backend tracks per session.
type PendingOrder struct {
	Product       string
	AmountCents   int64
	CustomerName  string
	CustomerPhone string
	CustomerTaxID string
}

// Client calls the opaque conversational backend over HTTP.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds dialogue client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a dialogue backend client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8001"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "dialogue"),
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

// messageEnvelope mirrors the webhook-style event shape the backend expects.
type messageEnvelope struct {
	Event string      `json:"event"`
	Data  messageData `json:"data"`
}

type messageData struct {
	Body string `json:"body"`
	From string `json:"from"`
	Type string `json:"type"`
}

type sendResponse struct {
	Status  string           `json:"status"`
	Reply   string           `json:"reply"`
	PixData *embeddedPixWire `json:"pix_data"`
}

type embeddedPixWire struct {
	PixCopiaCola string          `json:"pix_copia_cola"`
	QRCodeURL    string          `json:"qr_code_url"`
	Produto      string          `json:"produto"`
	Valor        json.RawMessage `json:"valor"`
}

// Send forwards one chat message to the backend and decodes its reply.
func (c *Client) Send(ctx context.Context, text, sessionID string) (*Reply, error) {
	payload := messageEnvelope{
		Event: "message",
		Data: messageData{
			Body: text,
			From: sessionID,
			Type: "message",
		},
	}

	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, "/bot-simples", "/bot-simples", payload, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return nil, fmt.Errorf("%w: status=%s", ErrRejected, resp.Status)
	}

	reply := decodeReply(resp)
	if reply.Outcome == OutcomePaymentIntent {
		c.logger.Debug("payment intent detected", "session", sessionID)
	}
	return reply, nil
}

func decodeReply(resp sendResponse) *Reply {
	reply := &Reply{Text: resp.Reply}

	if pix := resp.PixData; pix != nil && (pix.PixCopiaCola != "" || pix.QRCodeURL != "") {
		reply.Outcome = OutcomeEmbeddedPix
		reply.Pix = &EmbeddedPix{
			QRText:      pix.PixCopiaCola,
			QRImage:     pix.QRCodeURL,
			Product:     pix.Produto,
			AmountReais: formatWireAmount(pix.Valor),
		}
		return reply
	}
	if strings.HasPrefix(resp.Reply, paymentSentinel) {
		// Any payload after the marker is ignored: order data is always
		// re-fetched via LookupOrder, never parsed out of the reply.
		reply.Outcome = OutcomePaymentIntent
	}
	return reply
}

// formatWireAmount accepts the backend's amount as either a number of reais
// or a preformatted string and renders it with two decimals.
func formatWireAmount(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', 2, 64)
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	return ""
}

type orderResponse struct {
	Status string    `json:"status"`
	Data   orderWire `json:"data"`
}

type orderWire struct {
	Produto         string `json:"produto"`
	ValorCentavos   int64  `json:"valor_centavos"`
	ClienteNome     string `json:"cliente_nome"`
	ClienteTelefone string `json:"cliente_telefone"`
	ClienteCPF      string `json:"cliente_cpf"`
}

// LookupOrder retrieves the pending order the backend holds for a session.
func (c *Client) LookupOrder(ctx context.Context, sessionID string) (*PendingOrder, error) {
	var resp orderResponse
	// The metric label stays free of the session id to keep cardinality bounded.
	err := c.do(ctx, http.MethodGet, "/obter-dados-pix/"+sessionID, "/obter-dados-pix", nil, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") || resp.Data.ValorCentavos <= 0 {
		return nil, ErrOrderNotFound
	}
	return &PendingOrder{
		Product:       resp.Data.Produto,
		AmountCents:   resp.Data.ValorCentavos,
		CustomerName:  resp.Data.ClienteNome,
		CustomerPhone: resp.Data.ClienteTelefone,
		CustomerTaxID: resp.Data.ClienteCPF,
	}, nil
}

var errNotFound = errors.New("not found")

func (c *Client) do(ctx context.Context, method, path, label string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.DialogueRequests.WithLabelValues(label, "error").Inc()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.DialogueRequests.WithLabelValues(label, statusLabel).Inc()
		c.metrics.DialogueLatency.WithLabelValues(label, statusLabel).Observe(time.Since(start).Seconds())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("%w: status=%d body=%s", ErrRejected, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrRejected, err)
	}
	return nil
}
