package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type YooKassaConfig struct {
	ShopID    string
	SecretKey string
	APIURL    string
	Timeout   time.Duration
}

// YooKassaClient creates payments through the YooKassa v3 API. Requests are
// retried with the same Idempotence-Key, so the provider creates at most one
// payment per call.
type YooKassaClient struct {
	cfg      YooKassaConfig
	http     *http.Client
	attempts int
	backoff  time.Duration
}

func NewYooKassaClient(cfg YooKassaConfig) *YooKassaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &YooKassaClient{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		attempts: 3,
		backoff:  time.Second,
	}
}

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooPaymentRequest struct {
	Amount       yooAmount         `json:"amount"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Capture bool `json:"capture"`
}

type yooPaymentResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Amount       yooAmount `json:"amount"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
	CreatedAt time.Time `json:"created_at"`
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func (c *YooKassaClient) CreatePayment(ctx context.Context, req ProviderPaymentRequest) (*ProviderPayment, error) {
	body := yooPaymentRequest{
		Amount:      yooAmount{Value: req.Amount.StringFixed(2), Currency: req.Currency},
		Description: req.Description,
		Metadata:    map[string]string{"email": req.Email, "plan": string(req.Plan)},
		Capture:     true,
	}
	body.Confirmation.Type = "redirect"
	body.Confirmation.ReturnURL = req.ReturnURL

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	idempotenceKey := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.send(ctx, jsonData, idempotenceKey)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if _, ok := err.(retryableError); !ok || attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (c *YooKassaClient) send(ctx context.Context, jsonData []byte, idempotenceKey string) (*ProviderPayment, error) {
	url := strings.TrimRight(c.cfg.APIURL, "/") + "/payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", idempotenceKey)
	req.SetBasicAuth(c.cfg.ShopID, c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retryableError{fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		err := fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retryableError{err}
		}
		return nil, err
	}

	var out yooPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	amount, err := decimal.NewFromString(out.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("decoding amount: %w", err)
	}

	return &ProviderPayment{
		ID:              out.ID,
		Status:          out.Status,
		Amount:          amount,
		Currency:        out.Amount.Currency,
		ConfirmationURL: out.Confirmation.ConfirmationURL,
		CreatedAt:       out.CreatedAt,
	}, nil
}
