package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/services"
)

func postWebhook(t *testing.T, f *routerFixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(body))
	req.Header.Set("Paypal-Transmission-Id", "tx-1")
	req.Header.Set("Paypal-Transmission-Time", "2025-05-12T08:00:00Z")
	req.Header.Set("Paypal-Transmission-Sig", "sig")
	req.Header.Set("Paypal-Cert-Url", "https://api.paypal.com/cert")
	req.Header.Set("Paypal-Auth-Algo", "SHA256withRSA")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhooks_HeadersForwardedToService(t *testing.T) {
	f := newRouterFixture(t)

	rec := postWebhook(t, f, `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.webhooks.lastHeaders.TransmissionID != "tx-1" {
		t.Fatalf("transmission id not forwarded: %+v", f.webhooks.lastHeaders)
	}
	if f.webhooks.lastHeaders.CertURL != "https://api.paypal.com/cert" {
		t.Fatalf("cert url not forwarded: %+v", f.webhooks.lastHeaders)
	}
	if !strings.Contains(string(f.webhooks.lastBody), "WH-1") {
		t.Fatalf("body not forwarded: %s", f.webhooks.lastBody)
	}

	var resp webhookResponse
	decodeBody(t, rec, &resp)
	if resp.Outcome != string(services.WebhookOutcomeApplied) {
		t.Fatalf("unexpected outcome %q", resp.Outcome)
	}
}

func TestWebhooks_SignatureFailureIsBadRequest(t *testing.T) {
	f := newRouterFixture(t)
	f.webhooks.err = fmt.Errorf("%w: signature mismatch", payments.ErrAuthenticityFailed)

	rec := postWebhook(t, f, `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhooks_StoreOutageAsksForRedelivery(t *testing.T) {
	f := newRouterFixture(t)
	f.webhooks.err = fmt.Errorf("reserving event: %w", services.ErrDependencyUnavailable)

	rec := postWebhook(t, f, `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestWebhooks_NoBearerTokenRequired(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("webhook endpoint must not demand bearer auth")
	}
}
