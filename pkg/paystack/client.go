/**
 * @description
 * This package provides a client for interacting with the Paystack API.
 * It encapsulates the logic for making authenticated HTTP requests to
 * Paystack's endpoints, handling request body construction, and parsing
 * responses. Each school supplies its own secret key, so a Client is built
 * per operation from the school's provider credentials.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client for one school's secret key.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InitializeChargeRequest represents the payload for transaction initialization.
type InitializeChargeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // in kobo
	Reference   string `json:"reference,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitializeChargeResponse is the expected response from the initialize endpoint.
type InitializeChargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// VerifyChargeResponse is the expected response from the verify endpoint.
type VerifyChargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"` // "success", "failed", "abandoned"
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		PaidAt    string `json:"paid_at"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

// RefundResponse is the expected response from the refund endpoint.
type RefundResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		Amount      int64  `json:"amount"`
		Transaction struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
	} `json:"data"`
}

// ErrorResponse represents an error from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Status     bool   `json:"status"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error: %s", e.Message)
	}
	return fmt.Sprintf("paystack api error (status %d)", e.StatusCode)
}

// InitializeCharge asks Paystack to create a charge and returns the hosted
// authorization URL and the charge reference.
func (c *Client) InitializeCharge(ctx context.Context, req InitializeChargeRequest) (*InitializeChargeResponse, error) {
	var resp InitializeChargeResponse
	if err := c.do(ctx, "POST", "/transaction/initialize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyCharge fetches the current state of a charge by its reference.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*VerifyChargeResponse, error) {
	var resp VerifyChargeResponse
	if err := c.do(ctx, "GET", "/transaction/verify/"+reference, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InitiateRefund asks Paystack to refund part or all of a charge.
func (c *Client) InitiateRefund(ctx context.Context, reference string, amount int64) (*RefundResponse, error) {
	payload := map[string]interface{}{
		"transaction": reference,
		"amount":      amount,
	}
	var resp RefundResponse
	if err := c.do(ctx, "POST", "/refund", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes one authenticated request against the Paystack API.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paystack request: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create paystack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute paystack request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paystack_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("failed to decode paystack error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paystack_client op=%s status=%d message=%q", path, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode paystack response: %w", err)
		}
	}
	return nil
}
