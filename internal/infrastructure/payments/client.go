package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
)

const checkoutPath = "/v1/checkout/sessions"

// Config configures the checkout provider endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client opens checkout sessions over the provider's HTTP API.
type Client struct {
	cfg Config
}

var _ domain.PaymentProvider = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{cfg: cfg}
}

type checkoutBody struct {
	ParticipantID string `json:"participant_id"`
	EventID       string `json:"event_id"`
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	SuccessURL    string `json:"success_url,omitempty"`
	CancelURL     string `json:"cancel_url,omitempty"`
}

type checkoutResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) CreateCheckout(ctx context.Context, in domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if c.cfg.BaseURL == "" {
		return domain.CheckoutSession{}, fmt.Errorf("payment provider url is required")
	}

	body, err := json.Marshal(checkoutBody{
		ParticipantID: in.ParticipantID.String(),
		EventID:       in.EventID.String(),
		UserID:        in.UserID.String(),
		AmountCents:   in.AmountCents,
		Currency:      strings.ToUpper(in.Currency),
		SuccessURL:    in.SuccessURL,
		CancelURL:     in.CancelURL,
	})
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("marshal checkout request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+checkoutPath, bytes.NewReader(body))
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if in.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", in.IdempotencyKey)
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("checkout request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.CheckoutSession{}, fmt.Errorf("checkout request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out checkoutResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.URL) == "" {
		return domain.CheckoutSession{}, fmt.Errorf("checkout response missing session id or url")
	}
	return domain.CheckoutSession{ID: out.ID, URL: out.URL, ExpiresAt: out.ExpiresAt.UTC()}, nil
}
