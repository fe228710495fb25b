package payments

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type webhookFixture struct {
	gateway *PayPalGateway
	key     *rsa.PrivateKey
	certURL string
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "webhook-signing"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(certPEM)
	}))
	t.Cleanup(server.Close)

	gateway, err := NewPayPalGateway(PayPalConfig{
		ClientID:   "client-id",
		Secret:     "client-secret",
		WebhookID:  "WH-TEST",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewPayPalGateway returned error: %v", err)
	}

	return &webhookFixture{
		gateway: gateway,
		key:     key,
		certURL: server.URL + "/cert.pem",
	}
}

func (f *webhookFixture) sign(t *testing.T, transmissionID, transmissionTime string, body []byte) string {
	t.Helper()

	signed := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, "WH-TEST", crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(signed))
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func (f *webhookFixture) headers(t *testing.T, body []byte) WebhookHeaders {
	t.Helper()

	transmissionTime := time.Now().UTC().Format(time.RFC3339)
	return WebhookHeaders{
		TransmissionID:   "tx-1",
		TransmissionTime: transmissionTime,
		TransmissionSig:  f.sign(t, "tx-1", transmissionTime, body),
		CertURL:          f.certURL,
		AuthAlgo:         "SHA256withRSA",
	}
}

func TestVerifyWebhookSignatureAcceptsValidSignature(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{"id":"WH-EVENT-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	if err := fixture.gateway.VerifyWebhookSignature(context.Background(), fixture.headers(t, body), body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsTamperedBody(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{"id":"WH-EVENT-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	headers := fixture.headers(t, body)

	tampered := []byte(`{"id":"WH-EVENT-1","event_type":"PAYMENT.CAPTURE.DENIED"}`)
	err := fixture.gateway.VerifyWebhookSignature(context.Background(), headers, tampered)
	if !errors.Is(err, ErrAuthenticityFailed) {
		t.Fatalf("expected ErrAuthenticityFailed, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsMissingHeaders(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{}`)

	headers := fixture.headers(t, body)
	headers.TransmissionSig = ""

	err := fixture.gateway.VerifyWebhookSignature(context.Background(), headers, body)
	if !errors.Is(err, ErrAuthenticityFailed) {
		t.Fatalf("expected ErrAuthenticityFailed, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsUnknownAlgorithm(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{}`)

	headers := fixture.headers(t, body)
	headers.AuthAlgo = "MD5withRSA"

	err := fixture.gateway.VerifyWebhookSignature(context.Background(), headers, body)
	if !errors.Is(err, ErrAuthenticityFailed) {
		t.Fatalf("expected ErrAuthenticityFailed, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsForeignCertHost(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{}`)

	headers := fixture.headers(t, body)
	headers.CertURL = "https://evil.example.com/cert.pem"

	err := fixture.gateway.VerifyWebhookSignature(context.Background(), headers, body)
	if !errors.Is(err, ErrAuthenticityFailed) {
		t.Fatalf("expected ErrAuthenticityFailed, got %v", err)
	}
}

func TestVerifyWebhookSignatureRejectsWrongWebhookID(t *testing.T) {
	fixture := newWebhookFixture(t)
	body := []byte(`{"id":"WH-EVENT-1"}`)

	transmissionTime := time.Now().UTC().Format(time.RFC3339)
	signed := fmt.Sprintf("tx-1|%s|WH-OTHER|%d", transmissionTime, crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(signed))
	sig, err := rsa.SignPKCS1v15(rand.Reader, fixture.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	headers := WebhookHeaders{
		TransmissionID:   "tx-1",
		TransmissionTime: transmissionTime,
		TransmissionSig:  base64.StdEncoding.EncodeToString(sig),
		CertURL:          fixture.certURL,
	}

	verifyErr := fixture.gateway.VerifyWebhookSignature(context.Background(), headers, body)
	if !errors.Is(verifyErr, ErrAuthenticityFailed) {
		t.Fatalf("expected ErrAuthenticityFailed, got %v", verifyErr)
	}
}
