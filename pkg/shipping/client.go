package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/gmottadev/pageturner-backend/pkg/config"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	defaultCallTimeout    = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
)

var (
	errAPIKeyRequired     = errors.New("shipping api key is required")
	errLoggerRequired     = errors.New("shipping logger is required")
	errInvalidShippingEnv = fmt.Errorf("shipping environment must be %q or %q", sandboxEnv, productionEnv)
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://sandbox.superfrete.com",
	productionEnv: "https://api.superfrete.com",
}

// Ticket is the carrier's view of one shipment, fetched fresh each pass.
type Ticket struct {
	ID        string             `json:"id"`
	Status    enums.TicketStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
	Tracking  *string            `json:"tracking"`
	Price     decimal.Decimal    `json:"price"`
}

// Client talks to the shipping carrier with centralized auth, bounded
// timeouts and retries for transient failures.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	environment string
	logger      *logger.Logger

	callTimeout    time.Duration
	maxAttempts    int
	initialBackoff time.Duration
}

// ClientParams configure the carrier client.
type ClientParams struct {
	Config     config.ShippingConfig
	Reconcile  config.ReconcileConfig
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// NewClient initializes the carrier wrapper and validates the credentials.
func NewClient(ctx context.Context, params ClientParams) (*Client, error) {
	if params.Logger == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(params.Config.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(params.Config.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	baseURL := strings.TrimSpace(params.Config.BaseURL)
	if baseURL == "" {
		baseURL = baseURLs[env]
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	callTimeout := params.Reconcile.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	maxAttempts := params.Reconcile.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := params.Reconcile.RetryInitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}

	c := &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		environment:    env,
		logger:         params.Logger,
		callTimeout:    callTimeout,
		maxAttempts:    maxAttempts,
		initialBackoff: backoff,
	}

	params.Logger.Info(ctx, fmt.Sprintf("shipping client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized carrier environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// GetTicket fetches the current state of a shipping ticket.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeMissingInput, "ticket id is required")
	}

	var ticket Ticket
	err := c.withRetry(ctx, func(ctx context.Context) error {
		body, err := c.doRequest(ctx, http.MethodGet, "/api/v0/order/info/"+ticketID, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &ticket); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode ticket response")
		}
		return nil
	})
	if err != nil {
		return Ticket{}, err
	}
	return ticket, nil
}

// CancelTicket asks the carrier to cancel a ticket. Callers treat this as
// best-effort; errors are reported but carry no pipeline weight.
func (c *Client) CancelTicket(ctx context.Context, ticketID string) error {
	if strings.TrimSpace(ticketID) == "" {
		return pkgerrors.New(pkgerrors.CodeMissingInput, "ticket id is required")
	}
	payload, err := json.Marshal(map[string]any{
		"order": map[string]any{
			"id":          ticketID,
			"description": "canceled by order reconciliation",
		},
	})
	if err != nil {
		return err
	}
	return c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.doRequest(ctx, http.MethodPost, "/api/v0/order/cancel", payload)
		return err
	})
}

func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.initialBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "carrier request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read carrier response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("carrier returned status %d", resp.StatusCode))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("carrier rejected request with status %d", resp.StatusCode))
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidShippingEnv
	}
}
