package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"swapScope/internal/retry"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewAPIClient(APIConfig{BaseURL: srv.URL, APIKey: "secret"}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func TestUnitPrice(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asset/price/1/0xabc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key")
		}
		_, _ = w.Write([]byte(`{"unitPrice": 2000.5}`))
	})

	price, err := client.UnitPrice(context.Background(), "1", "0xabc")
	if err != nil {
		t.Fatalf("unit price: %v", err)
	}
	if price != 2000.5 {
		t.Fatalf("unexpected price %v", price)
	}
}

func TestUnitPriceNonNumeric(t *testing.T) {
	for _, body := range []string{`{"unitPrice": "12"}`, `{"unitPrice": null}`, `{}`} {
		client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := client.UnitPrice(context.Background(), "1", "0xabc")
		var nonNumeric *NonNumericPriceError
		if !errors.As(err, &nonNumeric) {
			t.Fatalf("body %s: expected non-numeric error, got %v", body, err)
		}
		if !retry.IsPermanent(err) {
			t.Fatalf("body %s: non-numeric price should be permanent", body)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/asset/price/1/missing":
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}
	})

	_, err := client.UnitPrice(context.Background(), "1", "missing")
	if !retry.IsPermanent(err) || !IsNotFound(err) {
		t.Fatalf("404 should be permanent not-found, got %v", err)
	}

	_, err = client.UnitPrice(context.Background(), "1", "busy")
	if err == nil || retry.IsPermanent(err) {
		t.Fatalf("503 should be retryable, got %v", err)
	}
}

func TestERC20Metadata(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asset/erc20/137/USDT" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"symbol":"USDT","name":"Tether USD","decimals":6,"address":"0xc2132d05d31c914a87c6611c10748aeb04b58e8f"}`))
	})

	meta, err := client.ERC20Metadata(context.Background(), "137", "USDT")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Address != "0xc2132D05D31c914a87C6611C10748AEb04B58e8F" {
		t.Fatalf("address not checksummed: %s", meta.Address)
	}
	if meta.Decimals == nil || *meta.Decimals != 6 || meta.Name != "Tether USD" || meta.ChainID != "137" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestERC20MetadataNativePlaceholder(t *testing.T) {
	client := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETH","name":"Ether","decimals":18,"address":"0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"}`))
	})

	meta, err := client.ERC20Metadata(context.Background(), "8453", "ETH")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Address != "" {
		t.Fatalf("native placeholder should map to empty address, got %s", meta.Address)
	}
}

func TestNewAPIClientRequiresBaseURL(t *testing.T) {
	if _, err := NewAPIClient(APIConfig{}, nil, nil); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
