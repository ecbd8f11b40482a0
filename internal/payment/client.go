package payment

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

const (
	defaultProductFamily = "Marmiratria"
	defaultCustomerName  = "Cliente"
	defaultCustomerEmail = "cliente@email.com"
	defaultCustomerPhone = "(11) 00000-0000"
	defaultExpiry        = time.Hour
)

var (
	// ErrTransport indicates the provider could not be reached.
	ErrTransport = errors.New("abacatepay transport failure")
	// ErrRejected indicates the provider answered with a non-2xx status.
	ErrRejected = errors.New("abacatepay rejected request")
	// ErrMalformed indicates a 2xx response whose body could not be parsed.
	ErrMalformed = errors.New("abacatepay malformed response")
)

// Client provides typed access to the AbacatePay PIX QR-code API.
type Client struct {
	logger        *slog.Logger
	baseURL       string
	apiKey        string
	productFamily string
	expiry        time.Duration
	http          *http.Client
	metrics       *metrics.Metrics
}

// Config holds AbacatePay client configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	ProductFamily string
	Expiry        time.Duration
}

// New creates a new AbacatePay client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.abacatepay.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	family := strings.TrimSpace(cfg.ProductFamily)
	if family == "" {
		family = defaultProductFamily
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Client{
		logger:        logger.With("component", "abacatepay"),
		baseURL:       base,
		apiKey:        cfg.APIKey,
		productFamily: family,
		expiry:        expiry,
		http:          &http.Client{Timeout: timeout},
		metrics:       metrics,
	}
}

// CreateRequest holds parameters to create a PIX QR-code charge.
type CreateRequest struct {
	Product       string
	AmountCents   int64
	CustomerName  string
	CustomerPhone string
	CustomerTaxID string
	CustomerEmail string
	// Expiry overrides the client-wide charge validity when positive.
	Expiry time.Duration
}

// Instrument is the canonical record for a created PIX charge. Field names
// are normalized here so callers never see the provider's naming variants.
type Instrument struct {
	QRText       string
	QRImage      string
	AmountReais  string
	Product      string
	InstrumentID string
	ExpiresAt    string
	PlatformFee  float64
	CustomerID   string
}

type createPayload struct {
	Amount      int64           `json:"amount"`
	ExpiresIn   int64           `json:"expiresIn"`
	Description string          `json:"description"`
	Customer    customerPayload `json:"customer"`
	Metadata    map[string]any  `json:"metadata"`
}

type customerPayload struct {
	Name      string `json:"name"`
	Cellphone string `json:"cellphone"`
	Email     string `json:"email"`
	TaxID     string `json:"taxId"`
}

// Create issues a PIX QR-code charge. A fresh tax id is generated when the
// customer record carries none; the generated id lives only for this call.
// No retries happen here: retry policy belongs to the caller.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Instrument, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", req.AmountCents)
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = defaultCustomerName
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = defaultCustomerEmail
	}
	phone := strings.TrimSpace(req.CustomerPhone)
	if phone == "" {
		phone = defaultCustomerPhone
	}
	taxID := strings.TrimSpace(req.CustomerTaxID)
	if taxID == "" {
		taxID = GenerateTaxID()
		c.logger.Debug("generated customer tax id", "product", req.Product)
	}
	expiry := req.Expiry
	if expiry <= 0 {
		expiry = c.expiry
	}

	amountReais := FormatReais(req.AmountCents)
	payload := createPayload{
		Amount:      req.AmountCents,
		ExpiresIn:   int64(expiry / time.Second),
		Description: fmt.Sprintf("%s - %s", c.productFamily, req.Product),
		Customer: customerPayload{
			Name:      name,
			Cellphone: phone,
			Email:     email,
			TaxID:     taxID,
		},
		Metadata: map[string]any{
			"produto":     req.Product,
			"valor_reais": amountReais,
		},
	}

	data, err := c.post(ctx, "/v1/pixQrCode/create", payload)
	if err != nil {
		return nil, err
	}

	inst := normalizeInstrument(data)
	inst.AmountReais = amountReais
	inst.Product = req.Product
	if inst.QRText == "" && inst.QRImage == "" {
		return nil, fmt.Errorf("%w: no qr code in body", ErrMalformed)
	}
	return inst, nil
}

// FormatReais renders an amount in cents as reais with two decimal digits.
func FormatReais(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.AbacateRequests.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.AbacateRequests.WithLabelValues(statusLabel).Inc()
		c.metrics.AbacateLatency.WithLabelValues(statusLabel).Observe(time.Since(start).Seconds())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		// Raw body stays in the error for operator logs; callers must not
		// surface it to end users.
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrRejected, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	data, err := decodeBody(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return data, nil
}

// decodeBody tolerates both a flat response object and one nested under
// "data", an inconsistency of the provider API.
func decodeBody(raw []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if nested, ok := body["data"].(map[string]any); ok {
		return nested, nil
	}
	return body, nil
}

// normalizeInstrument maps provider field name variants onto the canonical
// shape; the first non-empty match wins.
func normalizeInstrument(data map[string]any) *Instrument {
	return &Instrument{
		QRText:       firstString(data, "brCode", "qrCode"),
		QRImage:      firstString(data, "brCodeBase64", "qrCodeUrl"),
		InstrumentID: firstString(data, "id"),
		ExpiresAt:    firstString(data, "expiresAt", "expires_at"),
		PlatformFee:  toFloat(data["platformFee"]),
		CustomerID:   firstString(data, "customerId"),
	}
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str := toString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return parsed
		}
	case json.Number:
		parsed, err := v.Float64()
		if err == nil {
			return parsed
		}
	}
	return 0
}
