package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

const (
	defaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"
	defaultPayPalTimeout = 20 * time.Second
	tokenExpirySlack     = 30 * time.Second
)

// PayPalConfig configures the PayPalGateway.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	BaseURL   string
	WebhookID string

	HTTPClient *http.Client
	Logger     GatewayLogger
	Clock      func() time.Time
}

// PayPalGateway implements the Gateway interface against the PayPal REST v2 API.
type PayPalGateway struct {
	clientID  string
	secret    string
	baseURL   string
	webhookID string

	client *http.Client
	clock  func() time.Time
	logger GatewayLogger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	certMu sync.Mutex
	certs  map[string]cachedCert
}

// NewPayPalGateway constructs a PayPal gateway adapter using the given configuration.
func NewPayPalGateway(cfg PayPalConfig) (*PayPalGateway, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client credentials are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPayPalBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultPayPalTimeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalGateway{
		clientID:  clientID,
		secret:    secret,
		baseURL:   baseURL,
		webhookID: strings.TrimSpace(cfg.WebhookID),
		client:    client,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		certs:  make(map[string]cachedCert),
	}, nil
}

// CreateOrder creates a PayPal order with intent CAPTURE for the given amount.
func (g *PayPalGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("paypal: gateway is nil")
	}

	unit := map[string]any{
		"reference_id": req.ReferenceID,
		"amount": map[string]any{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         FormatAmount(req.AmountCents, req.Currency),
		},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		unit["description"] = desc
	}

	payload := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []any{unit},
	}

	var resp paypalOrderResponse
	if err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &resp, "create order"); err != nil {
		return GatewayOrder{}, err
	}

	g.logger(ctx, "payments.paypal.order.created", map[string]any{
		"gatewayOrderId": resp.ID,
		"status":         resp.Status,
		"referenceId":    req.ReferenceID,
	})

	return resp.toGatewayOrder(), nil
}

// Capture captures the funds authorised for an approved PayPal order.
func (g *PayPalGateway) Capture(ctx context.Context, gatewayOrderID string) (CaptureResult, error) {
	if g == nil {
		return CaptureResult{}, errors.New("paypal: gateway is nil")
	}
	if strings.TrimSpace(gatewayOrderID) == "" {
		return CaptureResult{}, errors.New("paypal: gateway order id is required")
	}

	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(gatewayOrderID))

	var resp paypalOrderResponse
	if err := g.doJSON(ctx, http.MethodPost, path, map[string]any{}, &resp, "capture order"); err != nil {
		return CaptureResult{}, err
	}

	result := resp.toCaptureResult(g.clock())

	g.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"gatewayOrderId": result.OrderID,
		"captureId":      result.CaptureID,
		"status":         resp.Status,
	})

	return result, nil
}

// GetOrder retrieves the current gateway state of a PayPal order.
func (g *PayPalGateway) GetOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("paypal: gateway is nil")
	}
	if strings.TrimSpace(gatewayOrderID) == "" {
		return GatewayOrder{}, errors.New("paypal: gateway order id is required")
	}

	path := "/v2/checkout/orders/" + url.PathEscape(gatewayOrderID)

	var resp paypalOrderResponse
	if err := g.doJSON(ctx, http.MethodGet, path, nil, &resp, "get order"); err != nil {
		return GatewayOrder{}, err
	}

	return resp.toGatewayOrder(), nil
}

func (g *PayPalGateway) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &GatewayError{Operation: operation, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &GatewayError{Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &GatewayError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gatewayErrorFromResponse(operation, resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
		}
	}
	return nil
}

func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	g.tokenMu.Lock()
	defer g.tokenMu.Unlock()

	now := g.clock()
	if g.token != "" && now.Add(tokenExpirySlack).Before(g.tokenExpiry) {
		return g.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &GatewayError{Operation: "oauth token", Err: err}
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &GatewayError{Operation: "oauth token", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &GatewayError{Operation: "oauth token", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", gatewayErrorFromResponse("oauth token", resp.StatusCode, data)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &tokenResp); err != nil {
		return "", &GatewayError{Operation: "oauth token", StatusCode: resp.StatusCode, Err: err}
	}
	if tokenResp.AccessToken == "" {
		return "", &GatewayError{Operation: "oauth token", StatusCode: resp.StatusCode, Message: "empty access token"}
	}

	g.token = tokenResp.AccessToken
	g.tokenExpiry = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return g.token, nil
}

func gatewayErrorFromResponse(operation string, status int, body []byte) *GatewayError {
	gwErr := &GatewayError{Operation: operation, StatusCode: status}

	var parsed struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		gwErr.Code = parsed.Name
		gwErr.Message = parsed.Message
		if gwErr.Message == "" && len(parsed.Details) > 0 {
			gwErr.Message = parsed.Details[0].Description
		}
		if gwErr.Code == "" && len(parsed.Details) > 0 {
			gwErr.Code = parsed.Details[0].Issue
		}
	}
	return gwErr
}

type paypalOrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []paypalLink
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
				CreateTime string `json:"create_time"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func (r paypalOrderResponse) toGatewayOrder() GatewayOrder {
	order := GatewayOrder{
		ID:     r.ID,
		Status: mapPayPalStatus(r.Status),
		Raw:    r.raw(),
	}
	for _, link := range r.Links {
		if strings.EqualFold(link.Rel, "approve") {
			order.ApprovalURL = link.Href
			break
		}
	}
	return order
}

func (r paypalOrderResponse) toCaptureResult(now time.Time) CaptureResult {
	result := CaptureResult{
		OrderID: r.ID,
		Status:  mapPayPalStatus(r.Status),
		Raw:     r.raw(),
	}

	for _, unit := range r.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if !strings.EqualFold(capture.Status, "COMPLETED") {
				continue
			}
			result.CaptureID = capture.ID
			result.Currency = strings.ToUpper(capture.Amount.CurrencyCode)
			result.AmountCents = ParseAmount(capture.Amount.Value, capture.Amount.CurrencyCode)

			capturedAt := now
			if ts, err := time.Parse(time.RFC3339, capture.CreateTime); err == nil {
				capturedAt = ts.UTC()
			}
			result.CapturedAt = &capturedAt
			return result
		}
	}
	return result
}

func (r paypalOrderResponse) raw() map[string]any {
	raw := map[string]any{}
	if data, err := json.Marshal(r); err == nil {
		_ = json.Unmarshal(data, &raw)
	}
	return raw
}

func mapPayPalStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return StatusCompleted
	case "APPROVED":
		return StatusApproved
	case "VOIDED":
		return StatusVoided
	default:
		return StatusCreated
	}
}

// zeroDecimalCurrencies lists currencies PayPal treats as having no fractional unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"HUF": {},
	"JPY": {},
	"TWD": {},
}

// FormatAmount renders an amount in minor units as the decimal string PayPal expects.
func FormatAmount(cents int64, currency string) string {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return strconv.FormatInt(cents, 10)
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseAmount converts a PayPal decimal amount string back to minor units.
func ParseAmount(value, currency string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}

	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac, _ := strings.Cut(value, ".")
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	default:
		frac = frac[:2]
	}

	wholeN, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	fracN, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0
	}

	cents := wholeN*100 + fracN
	if negative {
		cents = -cents
	}
	return cents
}
