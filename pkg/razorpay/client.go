/**
 * @description
 * This package provides a client for interacting with the Razorpay Orders API.
 * It encapsulates the logic for making authenticated HTTP requests to create
 * payment orders and for verifying the HMAC signature Razorpay attaches to
 * checkout callbacks.
 *
 * @dependencies
 * - bytes, context, crypto/hmac, encoding/json, net/http, time: Standard Go libraries.
 */
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the Razorpay API.
type Client struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

// NewClient creates a new Razorpay API client.
func NewClient(baseURL, keyID, keySecret string) *Client {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &Client{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrderRequest represents the payload for creating a Razorpay order.
type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// OrderResponse is the expected response from Razorpay's orders endpoint.
type OrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// ErrorResponse represents an error from the Razorpay API.
type ErrorResponse struct {
	ErrorBody struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.ErrorBody.Code != "" || e.ErrorBody.Description != "" {
		return fmt.Sprintf("razorpay api error: %s - %s", e.ErrorBody.Code, e.ErrorBody.Description)
	}
	return "unknown razorpay api error"
}

// CreateOrder creates a payment order with the gateway and returns its id.
// Amount is in the currency's smallest unit (paise for INR); receipt is an
// opaque caller reference echoed back by the gateway.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	body, err := json.Marshal(CreateOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/orders", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create order request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute order request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=razorpay_client op=create_order status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=razorpay_client op=create_order status=%d code=%q description=%q", resp.StatusCode, errResp.ErrorBody.Code, errResp.ErrorBody.Description)
		return "", &errResp
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(bodyBytes, &orderResp); err != nil {
		return "", fmt.Errorf("failed to decode order response: %w", err)
	}
	if orderResp.ID == "" {
		return "", fmt.Errorf("order response missing id")
	}

	return orderResp.ID, nil
}

// VerifyPaymentSignature checks the checkout callback signature: HMAC-SHA256
// over "<order_id>|<payment_id>" keyed with the API secret, hex encoded.
// Comparison is constant time.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.KeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
