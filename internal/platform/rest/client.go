// Package rest is a generic HMAC-signed REST venue adapter with an optional
// websocket depth stream.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/metrics"
)

// DefaultDepthLimit is the number of levels requested per side.
const DefaultDepthLimit = 20

// Config describes one venue endpoint.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	DepthLimit int
}

// Client implements domain.Exchange against one venue's REST API.
type Client struct {
	name       string
	baseURL    string
	auth       *crypto.HMACAuth
	depthLimit int
	httpClient *http.Client
	stream     *DepthStream
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a REST client. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.DepthLimit
	if limit <= 0 {
		limit = DefaultDepthLimit
	}
	var auth *crypto.HMACAuth
	if cfg.APIKey != "" {
		auth = &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret}
	}
	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       auth,
		depthLimit: limit,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger.With(slog.String("component", "rest"), slog.String("venue", cfg.Name)),
		now:        time.Now,
	}
}

// WithStream makes GetDepth prefer fresh ladders from s over REST polls.
func (c *Client) WithStream(s *DepthStream) *Client {
	c.stream = s
	return c
}

// Name returns the venue name.
func (c *Client) Name() string { return c.name }

// GetDepth returns the ladder for inst.
func (c *Client) GetDepth(ctx context.Context, inst domain.Instrument) (domain.Ladder, error) {
	if c.stream != nil {
		if l, ok := c.stream.Latest(inst); ok {
			return l, nil
		}
	}
	q := url.Values{}
	q.Set("symbol", inst.Symbol())
	q.Set("limit", fmt.Sprint(c.depthLimit))
	body, err := c.do(ctx, http.MethodGet, "/depth?"+q.Encode(), nil, false)
	if err != nil {
		c.metrics.VenueError(c.name, "depth")
		return domain.Ladder{}, fmt.Errorf("rest %s: depth %s: %w", c.name, inst.Symbol(), err)
	}
	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Ladder{}, fmt.Errorf("rest %s: decode depth: %w", c.name, err)
	}
	return resp.ladder(inst, c.now().UTC()), nil
}

// GetAccount returns free balances.
func (c *Client) GetAccount(ctx context.Context) (domain.Balances, error) {
	body, err := c.do(ctx, http.MethodGet, "/account", nil, true)
	if err != nil {
		c.metrics.VenueError(c.name, "account")
		return nil, fmt.Errorf("rest %s: account: %w", c.name, err)
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("rest %s: decode account: %w", c.name, err)
	}
	out := make(domain.Balances, len(resp.Balances))
	for _, b := range resp.Balances {
		out[strings.ToUpper(b.Currency)] = b.Free
	}
	return out, nil
}

// PlaceOrder submits a limit order. Validation and funding rejections come
// back as a nil ack, everything else as an error.
func (c *Client) PlaceOrder(ctx context.Context, side domain.Side, inst domain.Instrument, quantity, price decimal.Decimal) (*domain.OrderAck, error) {
	req := placeRequest{
		Symbol:   inst.Symbol(),
		Side:     strings.ToUpper(string(side)),
		Type:     "LIMIT",
		Quantity: quantity,
		Price:    price,
	}
	body, err := c.do(ctx, http.MethodPost, "/orders", req, true)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.rejected() {
			c.logger.WarnContext(ctx, "order rejected",
				slog.String("symbol", inst.Symbol()),
				slog.String("side", string(side)),
				slog.String("code", se.Code),
				slog.String("message", se.Msg),
			)
			return nil, nil
		}
		c.metrics.VenueError(c.name, "place")
		return nil, fmt.Errorf("rest %s: place %s: %w", c.name, inst.Symbol(), err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("rest %s: decode place: %w", c.name, err)
	}
	status, ok := resp.status()
	if !ok || resp.OrderID == "" {
		c.logger.WarnContext(ctx, "order not accepted",
			slog.String("symbol", inst.Symbol()),
			slog.String("status", resp.Status),
		)
		return nil, nil
	}
	return &domain.OrderAck{OrderID: resp.OrderID, Status: status}, nil
}

// GetOrder returns the venue's view of orderID, nil when the venue does not
// know it.
func (c *Client) GetOrder(ctx context.Context, inst domain.Instrument, orderID string) (*domain.OrderInfo, error) {
	body, err := c.do(ctx, http.MethodGet, orderPath(inst, orderID), nil, true)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.metrics.VenueError(c.name, "get_order")
		return nil, fmt.Errorf("rest %s: get order %s: %w", c.name, orderID, err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("rest %s: decode order: %w", c.name, err)
	}
	status, ok := resp.status()
	if !ok {
		// REJECTED after acceptance: nothing rests and nothing filled.
		status = domain.OrderStatusCanceled
	}
	return &domain.OrderInfo{
		OrderID:        orderID,
		Status:         status,
		AvgPrice:       resp.AvgPrice,
		FilledQuantity: resp.FilledQuantity,
	}, nil
}

// Cancel withdraws orderID. An order the venue no longer knows is reported
// as not confirmed.
func (c *Client) Cancel(ctx context.Context, inst domain.Instrument, orderID string) (bool, error) {
	_, err := c.do(ctx, http.MethodDelete, orderPath(inst, orderID), nil, true)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		c.metrics.VenueError(c.name, "cancel")
		return false, fmt.Errorf("rest %s: cancel %s: %w", c.name, orderID, err)
	}
	return true, nil
}

func orderPath(inst domain.Instrument, orderID string) string {
	return "/orders/" + url.PathEscape(orderID) + "?symbol=" + url.QueryEscape(inst.Symbol())
}

// do sends one request and returns the body of a 2xx reply. Private
// endpoints are signed over method, path with query, and body.
func (c *Client) do(ctx context.Context, method, path string, reqBody any, signed bool) ([]byte, error) {
	var raw []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		raw = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		if c.auth == nil {
			return nil, fmt.Errorf("%w: no API key configured", domain.ErrUnauthorized)
		}
		for k, v := range c.auth.HeadersAt(method, path, string(raw), c.now().UnixMilli()) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx replies onto domain sentinels.
func (c *Client) checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	se := &StatusError{Venue: c.name, Status: code, Code: apiErr.Code, Msg: apiErr.Message}
	switch code {
	case http.StatusNotFound:
		se.kind = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		se.kind = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		se.kind = domain.ErrRateLimited
	}
	return se
}

var _ domain.Exchange = (*Client)(nil)
