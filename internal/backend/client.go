package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// TokenSource yields the bearer token attached to backend requests. An empty
// token (or an error) does not block the request: unauthenticated calls are
// sent as-is and rejected server-side where authentication is required.
type TokenSource interface {
	AuthToken(ctx context.Context) (string, error)
}

// APIError is a non-2xx backend response. The body is kept verbatim so
// callers can surface the backend's message.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Client wraps the central backend REST API. It attaches the bearer token
// when one is available and logs every failed response before returning it.
// No retries, no caching: callers re-invoke on failure.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, err := c.tokens.AuthToken(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("ERROR: backend %s %s: %v", method, u, err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("ERROR: backend %s %s: read body: %v", method, u, err)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, URL: u, Status: resp.StatusCode, Body: string(raw)}
		log.Printf("ERROR: %s", apiErr.Error())
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Printf("ERROR: backend %s %s: decode response: %v", method, u, err)
			return err
		}
	}
	return nil
}

// --- Products ---

func (c *Client) ListAvailableProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "/products/available", nil, &products)
	return products, err
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p)
	return p, err
}

// --- Orders ---

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &o)
	return o, err
}

func (c *Client) CreateMultiOrder(ctx context.Context, req CreateMultiOrderRequest) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodPost, "/orders/multi", req, &o)
	return o, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &o)
	return o, err
}

func (c *Client) GetOrdersByMachine(ctx context.Context, machineID string) ([]Order, error) {
	var orders []Order
	err := c.do(ctx, http.MethodGet, "/orders/machine/"+url.PathEscape(machineID), nil, &orders)
	return orders, err
}

// --- Payments ---

func (c *Client) VerifyPayment(ctx context.Context, orderID string, req VerifyPaymentRequest) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodPost, "/payments/verify/"+url.PathEscape(orderID), req, &o)
	return o, err
}

func (c *Client) UpdatePaymentMethod(ctx context.Context, orderID string, req UpdatePaymentMethodRequest) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodPatch, "/payments/method/"+url.PathEscape(orderID), req, &o)
	return o, err
}

// --- Dispense ---

func (c *Client) TriggerDispense(ctx context.Context, req TriggerDispenseRequest) (DispenseStatus, error) {
	var d DispenseStatus
	err := c.do(ctx, http.MethodPost, "/dispense/trigger", req, &d)
	return d, err
}

func (c *Client) GetDispenseStatus(ctx context.Context, orderID string) (DispenseStatus, error) {
	var d DispenseStatus
	err := c.do(ctx, http.MethodGet, "/dispense/status/"+url.PathEscape(orderID), nil, &d)
	return d, err
}

// --- Machines ---

func (c *Client) GetMachine(ctx context.Context, id string) (Machine, error) {
	var m Machine
	err := c.do(ctx, http.MethodGet, "/machines/"+url.PathEscape(id), nil, &m)
	return m, err
}

func (c *Client) UpdateMachineStatus(ctx context.Context, id string, req UpdateMachineStatusRequest) (Machine, error) {
	var m Machine
	err := c.do(ctx, http.MethodPost, "/machines/"+url.PathEscape(id)+"/status", req, &m)
	return m, err
}

// --- Health assistant ---

func (c *Client) AssistantChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	err := c.do(ctx, http.MethodPost, "/health-assistant/chat", req, &resp)
	return resp, err
}

func (c *Client) AssistantRecommendations(ctx context.Context, req RecommendationsRequest) (RecommendationsResponse, error) {
	var resp RecommendationsResponse
	err := c.do(ctx, http.MethodPost, "/health-assistant/recommendations", req, &resp)
	return resp, err
}

func (c *Client) AssistantStatus(ctx context.Context) (AssistantStatus, error) {
	var resp AssistantStatus
	err := c.do(ctx, http.MethodGet, "/health-assistant/status", nil, &resp)
	return resp, err
}

// --- Stock logs ---

func (c *Client) GetStockLogs(ctx context.Context, machineID string) ([]StockLog, error) {
	var logs []StockLog
	err := c.do(ctx, http.MethodGet, "/stock/logs/"+url.PathEscape(machineID), nil, &logs)
	return logs, err
}

// --- Auth ---

func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp)
	return resp, err
}

// --- Announcements ---

func (c *Client) ListAnnouncements(ctx context.Context) ([]Announcement, error) {
	var out []Announcement
	err := c.do(ctx, http.MethodGet, "/announcements", nil, &out)
	return out, err
}

func (c *Client) CreateAnnouncement(ctx context.Context, a Announcement) (Announcement, error) {
	var out Announcement
	err := c.do(ctx, http.MethodPost, "/announcements", a, &out)
	return out, err
}

func (c *Client) UpdateAnnouncement(ctx context.Context, id string, a Announcement) (Announcement, error) {
	var out Announcement
	err := c.do(ctx, http.MethodPut, "/announcements/"+url.PathEscape(id), a, &out)
	return out, err
}

func (c *Client) DeleteAnnouncement(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/announcements/"+url.PathEscape(id), nil, nil)
}

// TrackAnnouncement records a view or click (see enum.AnnouncementTrack*).
func (c *Client) TrackAnnouncement(ctx context.Context, id, action string) error {
	body := map[string]string{"action": action}
	return c.do(ctx, http.MethodPost, "/announcements/"+url.PathEscape(id)+"/track", body, nil)
}

// --- Users ---

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, http.MethodGet, "/users", nil, &users)
	return users, err
}
