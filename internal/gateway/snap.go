package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SnapClient talks to the gateway's Snap API with server-key basic auth.
type SnapClient struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func NewSnapClient(baseURL, serverKey string) *SnapClient {
	return &SnapClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// IsPlaceholderKey reports whether a server key is a sample value that was
// never replaced with real credentials.
func IsPlaceholderKey(key string) bool {
	if key == "" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.Contains(lower, "xxxx") || strings.HasPrefix(lower, "your-")
}

func (c *SnapClient) IsConfigured() bool {
	return !IsPlaceholderKey(c.serverKey)
}

type snapCreateRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []LineItem `json:"item_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name,omitempty"`
		Email     string `json:"email,omitempty"`
	} `json:"customer_details"`
}

type snapErrorResponse struct {
	StatusCode    string   `json:"status_code"`
	ErrorMessages []string `json:"error_messages"`
	StatusMessage string   `json:"status_message"`
}

// CreateTransaction posts a new checkout session to the Snap API. A 406
// from the gateway means the order id already has a transaction and maps
// to ErrDuplicateOrder.
func (c *SnapClient) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (Transaction, error) {
	if !c.IsConfigured() {
		return Transaction{}, ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return Transaction{}, err
	}

	var body snapCreateRequest
	body.TransactionDetails.OrderID = req.OrderID
	body.TransactionDetails.GrossAmount = req.Amount
	body.ItemDetails = req.Items
	body.CustomerDetails.FirstName = req.CustomerName
	body.CustomerDetails.Email = req.CustomerEmail

	var txn Transaction
	if err := c.do(ctx, http.MethodPost, "/snap/v1/transactions", body, &txn); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// CheckStatus queries the gateway's transaction-status endpoint.
func (c *SnapClient) CheckStatus(ctx context.Context, orderID string) (Status, error) {
	if !c.IsConfigured() {
		return Status{}, ErrNotConfigured
	}
	if orderID == "" {
		return Status{}, ErrMissingOrderID
	}
	var st Status
	if err := c.do(ctx, http.MethodGet, "/v2/"+url.PathEscape(orderID)+"/status", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (c *SnapClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
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
	// Basic auth with the server key as username and empty password.
	cred := base64.StdEncoding.EncodeToString([]byte(c.serverKey + ":"))
	req.Header.Set("Authorization", "Basic "+cred)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("ERROR: gateway %s %s: %v", method, u, err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("ERROR: gateway %s %s: read body: %v", method, u, err)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("ERROR: gateway %s %s: status %d: %s", method, u, resp.StatusCode, raw)
		if resp.StatusCode == http.StatusNotAcceptable {
			return ErrDuplicateOrder
		}
		var gerr snapErrorResponse
		if json.Unmarshal(raw, &gerr) == nil && len(gerr.ErrorMessages) > 0 {
			return fmt.Errorf("gateway: %s", strings.Join(gerr.ErrorMessages, "; "))
		}
		return fmt.Errorf("gateway %s %s: status %d", method, u, resp.StatusCode)
	}

	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
