package gateway

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

	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/pkg/config"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

var (
	errBaseURLRequired       = errors.New("gateway base url is required")
	errAPIKeyRequired        = errors.New("gateway api key is required")
	errWebhookSecretRequired = errors.New("gateway webhook secret is required")
	errLoggerRequired        = errors.New("gateway logger is required")
)

// Subscription is the gateway's view of a recurring charge agreement.
type Subscription struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer"`
	Status        string          `json:"status"`
	Value         decimal.Decimal `json:"value"`
	Cycle         string          `json:"cycle"`
	NextDueDate   string          `json:"nextDueDate"`
	PaymentLink   string          `json:"paymentLink,omitempty"`
	InvoiceURL    string          `json:"invoiceUrl,omitempty"`
	BankSlipURL   string          `json:"bankSlipUrl,omitempty"`
	ExternalRef   string          `json:"externalReference,omitempty"`
	DeletedRemote bool            `json:"deleted,omitempty"`
}

// SubscriptionCreateParams carries everything the gateway needs to open a
// recurring charge. ExternalRef is the tenant id so notifications can be
// correlated even before the first payment lands.
type SubscriptionCreateParams struct {
	CustomerID  string
	Value       decimal.Decimal
	Cycle       string
	NextDueDate time.Time
	Description string
	ExternalRef string
}

// Client is the REST adapter for the payment gateway. All retry, auth and
// error mapping lives here so callers see only coded errors.
type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
	maxRetries    int
	retryBackoff  time.Duration
	logger        *logger.Logger
}

// NewClient validates the gateway credentials and returns a ready adapter.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	c := &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		logger:        logg,
	}

	logg.Info(ctx, "gateway client initialized")
	return c, nil
}

// WebhookSecret returns the shared secret notifications are signed with.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreateSubscription opens a recurring charge at the gateway.
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error) {
	body := map[string]any{
		"customer":          params.CustomerID,
		"value":             params.Value,
		"cycle":             params.Cycle,
		"nextDueDate":       params.NextDueDate.Format("2006-01-02"),
		"description":       params.Description,
		"externalReference": params.ExternalRef,
	}
	c.log(ctx, "request", "create_subscription", map[string]any{
		"customer_id": params.CustomerID,
		"cycle":       params.Cycle,
		"value":       params.Value.StringFixed(2),
	})

	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &sub); err != nil {
		c.log(ctx, "error", "create_subscription", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return &sub, nil
}

// CancelSubscription stops future charges at the gateway. Cancelling an
// already-deleted subscription is treated as success.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	c.log(ctx, "request", "cancel_subscription", map[string]any{"subscription_id": subscriptionID})

	err := c.do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil, nil)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			c.log(ctx, "response", "cancel_subscription", map[string]any{
				"subscription_id": subscriptionID,
				"already_deleted": true,
			})
			return nil
		}
		c.log(ctx, "error", "cancel_subscription", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "cancel_subscription", map[string]any{"subscription_id": subscriptionID})
	return nil
}

// GetSubscription fetches the gateway's current view of a subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	c.log(ctx, "request", "get_subscription", map[string]any{"subscription_id": subscriptionID})

	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		c.log(ctx, "error", "get_subscription", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return &sub, nil
}

// do issues one gateway call, retrying transient failures with linear
// backoff. Only network errors and 5xx responses are retried; 4xx is final.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		payload = encoded
	}

	attempts := c.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "gateway request cancelled")
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("access_token", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway unreachable")
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = pkgerrors.Wrap(pkgerrors.CodeDependency, readErr, "read gateway response")
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = pkgerrors.New(pkgerrors.CodeDependency,
				fmt.Sprintf("gateway returned %d", resp.StatusCode))
			continue
		}
		if resp.StatusCode >= 400 {
			return c.mapClientError(resp.StatusCode, respBody)
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
			}
		}
		return nil
	}
	return lastErr
}

func (c *Client) mapClientError(status int, body []byte) error {
	message := gatewayErrorMessage(body)
	switch status {
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, message)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, message)
	}
}

func gatewayErrorMessage(body []byte) string {
	var envelope struct {
		Errors []struct {
			Description string `json:"description"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		return envelope.Errors[0].Description
	}
	return "gateway rejected request"
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("gateway %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("gateway %s", phase))
	}
}
