package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultCLOBURL = "https://clob.polymarket.com"

	collateralDecimals = 6
	requestsPerSecond  = 5
	requestBurst       = 3
)

// APIError is a non-2xx response from the venue.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clob api error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the CLOB REST API.
type Client struct {
	baseURL    string
	apiKey     string
	auth       Authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewClient(baseURL, apiKey string, auth Authenticator, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultCLOBURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:     logger,
	}
}

type orderPayload struct {
	Order     orderBody `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

type orderBody struct {
	TokenID string `json:"tokenId"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// PlaceOrder submits a limit order and returns the venue's order record.
func (c *Client) PlaceOrder(ctx context.Context, order models.OrderRequest) (*models.Order, error) {
	orderType := order.Type
	if orderType == "" {
		orderType = models.OrderTypeGTC
	}
	payload := orderPayload{
		Order: orderBody{
			TokenID: order.TokenID,
			Price:   decimal.NewFromFloat(order.Price).StringFixed(models.TickSize),
			Size:    decimal.NewFromFloat(order.Size).String(),
			Side:    string(order.Side),
		},
		Owner:     c.apiKey,
		OrderType: string(orderType),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return nil, err
	}

	result := gjson.ParseBytes(resp)
	if msg := result.Get("errorMsg").String(); msg != "" || !result.Get("success").Bool() {
		if msg == "" {
			msg = "order rejected"
		}
		return nil, fmt.Errorf("failed to place order: %s", msg)
	}
	orderID := result.Get("orderID").String()
	if orderID == "" {
		return nil, fmt.Errorf("failed to place order: empty order id")
	}

	status := models.OrderStatus(result.Get("status").String())
	if status == "" {
		status = models.OrderStatusLive
	}
	return &models.Order{
		OrderID:   orderID,
		TokenID:   order.TokenID,
		Side:      order.Side,
		Type:      orderType,
		Price:     order.Price,
		Size:      order.Size,
		Status:    status,
		CreatedAt: time.Now(),
	}, nil
}

// CollateralBalance returns the wallet's USDC balance as seen by the exchange.
func (c *Client) CollateralBalance(ctx context.Context) (float64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, err
	}
	raw := gjson.GetBytes(resp, "balance").String()
	if raw == "" {
		return 0, fmt.Errorf("balance missing from response")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid balance %q: %w", raw, err)
	}
	return amount.Shift(-collateralDecimals).InexactFloat64(), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// Signatures cover the path without the query string.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req, method, signPath, string(body)); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("CLOB request")

	return data, nil
}
