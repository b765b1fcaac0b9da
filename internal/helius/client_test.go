package helius

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"onchain-analytics/internal/domain"
)

const enhancedFixture = `[
  {
    "type": "SWAP",
    "source": "RAYDIUM",
    "feePayer": "Wallet111",
    "signature": "sig-1",
    "slot": 250000000,
    "timestamp": 1700000000,
    "nativeTransfers": [{"fromUserAccount": "Wallet111", "toUserAccount": "Pool111", "amount": 1000000000}],
    "tokenTransfers": [{"fromUserAccount": "Pool111", "toUserAccount": "Wallet111", "tokenAmount": 1000, "mint": "Mint111"}],
    "accountData": [{"account": "Wallet111", "nativeBalanceChange": -1000005000, "tokenBalanceChanges": [
      {"userAccount": "Wallet111", "tokenAccount": "Ata111", "mint": "Mint111", "rawTokenAmount": {"tokenAmount": "1000000000", "decimals": 6}}
    ]}],
    "transactionError": null,
    "events": {"swap": {
      "nativeInput": {"account": "Wallet111", "amount": "1000000000"},
      "tokenOutputs": [{"userAccount": "Wallet111", "mint": "Mint111", "rawTokenAmount": {"tokenAmount": "1000000000", "decimals": 6}}],
      "innerSwaps": [{"programInfo": {"source": "RAYDIUM", "account": "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8", "programName": "RAYDIUM_LIQUIDITY_POOL_V4"}}]
    }},
    "description": "ignored"
  }
]`

func TestClient_Transactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/addresses/Wallet111/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api-key") != "key" || q.Get("before") != "cursor" || q.Get("limit") != "100" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Has("type") {
			t.Error("type filter must be omitted when unset")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(enhancedFixture))
	}))
	defer server.Close()

	client := NewClient("key", server.URL, nil)
	txns, err := client.Transactions(context.Background(), "Wallet111", PageQuery{Before: "cursor", Limit: 500})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}

	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	tx := txns[0]
	if tx.Signature != "sig-1" || tx.Timestamp != 1700000000 {
		t.Errorf("unexpected transaction header: %+v", tx)
	}
	if tx.Events.Swap == nil || tx.Events.Swap.NativeInput.Amount != "1000000000" {
		t.Fatalf("swap event not decoded: %+v", tx.Events)
	}
	if got := tx.AccountData[0].TokenBalanceChanges[0].RawTokenAmount.Decimals; got != 6 {
		t.Errorf("expected decimals 6, got %d", got)
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient("", "http://unused", nil).Transactions(context.Background(), "addr", PageQuery{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient("key", server.URL, nil).Transactions(context.Background(), "addr", PageQuery{})

	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
}

func TestClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "not a list"})
	}))
	defer server.Close()

	_, err := NewClient("key", server.URL, nil).Transactions(context.Background(), "addr", PageQuery{})
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestClient_TransportErrorHidesKey(t *testing.T) {
	_, err := NewClient("secret-key", "http://127.0.0.1:1", nil).Transactions(context.Background(), "addr", PageQuery{})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Errorf("error leaks api key: %v", err)
	}
}

func TestNextCursor(t *testing.T) {
	full := make([]EnhancedTransaction, 3)
	full[2].Signature = "last"

	if got := NextCursor(full, 3); got != "last" {
		t.Errorf("NextCursor(full) = %q, want last", got)
	}
	if got := NextCursor(full[:2], 3); got != "" {
		t.Errorf("NextCursor(short) = %q, want empty", got)
	}
}
