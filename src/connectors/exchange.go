// REST client for the live derivatives exchange.
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// APIResponse is the exchange's uniform envelope.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OrderResult is the fill report for a submitted order.
type OrderResult struct {
	OrderID   string  `json:"orderId"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	AvgPrice  float64 `json:"avgPrice,string"`
	FilledQty float64 `json:"filledQty,string"`
	Status    string  `json:"status"`
}

// ExchangeClient is the authenticated REST client used by the live closer.
type ExchangeClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewExchangeClient builds a signed client with internal retry on transient
// HTTP failures.
func NewExchangeClient(apiKey, apiSecret, baseURL string) *ExchangeClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = GetConfig().ExchangeBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &ExchangeClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

func signRequest(path, query, body string, expiry int64, secret string) string {
	base := path
	if query != "" {
		base += query
	}
	base += fmt.Sprintf("%d", expiry)
	if body != "" {
		base += body
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *ExchangeClient) doRequest(ctx context.Context, method, path, query string, body []byte) (*APIResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()

	sig := signRequest(path, query, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-request-signature", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

// PlaceReduceOnlyOrder submits a market reduce-only order and returns the
// fill price and quantity the exchange reports.
func (c *ExchangeClient) PlaceReduceOnlyOrder(ctx context.Context, symbol, orderSide string, quantity float64) (float64, float64, error) {
	body := map[string]interface{}{
		"symbol":      symbol,
		"side":        orderSide,
		"ordType":     "Market",
		"orderQty":    fmt.Sprintf("%.8f", quantity),
		"reduceOnly":  true,
		"clOrdID":     fmt.Sprintf("pe-%d", time.Now().UnixNano()),
		"timeInForce": "ImmediateOrCancel",
	}

	b, err := json.Marshal(body)
	if err != nil {
		return 0, 0, err
	}

	resp, err := c.doRequest(ctx, "POST", "/orders", "", b)
	if err != nil {
		return 0, 0, err
	}
	if resp.Code != 0 {
		return 0, 0, fmt.Errorf("API error: %s", resp.Msg)
	}

	var result OrderResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return 0, 0, err
	}

	logger.WithFields(map[string]interface{}{
		"order_id": result.OrderID,
		"symbol":   symbol,
		"side":     orderSide,
		"qty":      result.FilledQty,
		"price":    result.AvgPrice,
	}).Info("reduce-only order filled")

	return result.AvgPrice, result.FilledQty, nil
}
