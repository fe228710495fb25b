package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{LastID: "01HVZ5XJ9G3R8T0Q4W2N6B7K1M"})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if cursor.LastID != "01HVZ5XJ9G3R8T0Q4W2N6B7K1M" {
		t.Errorf("unexpected cursor: %+v", cursor)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token, got %q", token)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("not-base64!!!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestFromRequestDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/products", nil)

	params, err := FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Errorf("expected default page size, got %d", params.PageSize)
	}
	if params.PageToken != "" {
		t.Errorf("expected empty token, got %q", params.PageToken)
	}
}

func TestFromRequestClampsPageSize(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/products?pageSize=5000", nil)

	params, err := FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != DefaultMaxPageSize {
		t.Errorf("expected clamped page size, got %d", params.PageSize)
	}
}

func TestFromRequestRejectsInvalidValues(t *testing.T) {
	for _, target := range []string{
		"/api/v1/products?pageSize=abc",
		"/api/v1/products?pageSize=-1",
		"/api/v1/products?pageToken=%21%21",
	} {
		req := httptest.NewRequest("GET", target, nil)
		if _, err := FromRequest(req); err == nil {
			t.Errorf("expected error for %q", target)
		}
	}
}
