package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"onchain-analytics/internal/domain"
)

// rpcServer answers every request with handle's result for the decoded request.
func rpcServer(t *testing.T, handle func(req rpcRequest) map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := handle(req)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getSignaturesForAddress" {
			t.Errorf("expected method getSignaturesForAddress, got %s", req.Method)
		}
		params, _ := req.Params.([]interface{})
		if len(params) != 2 {
			t.Fatalf("expected 2 params, got %v", req.Params)
		}
		config, _ := params[1].(map[string]interface{})
		if config["before"] != "sigB" || config["limit"] != float64(2) {
			t.Errorf("unexpected config: %v", config)
		}
		return map[string]interface{}{
			"result": []map[string]interface{}{
				{"signature": "sig1", "slot": 100, "blockTime": 1700000000, "err": nil},
				{"signature": "sig2", "slot": 99, "blockTime": nil, "err": map[string]interface{}{"InstructionError": 1}},
			},
		}
	})

	client := NewHTTPClient(server.URL)
	sigs, err := client.GetSignaturesForAddress(context.Background(), "addr", &SignaturesOpts{Before: "sigB", Limit: 2})
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}

	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(sigs))
	}
	if sigs[0].Signature != "sig1" || sigs[0].BlockTime == nil || *sigs[0].BlockTime != 1700000000 {
		t.Errorf("unexpected first signature: %+v", sigs[0])
	}
	if sigs[1].BlockTime != nil || sigs[1].Err == nil {
		t.Errorf("unexpected second signature: %+v", sigs[1])
	}
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getTokenSupply" {
			t.Errorf("expected method getTokenSupply, got %s", req.Method)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value":   map[string]interface{}{"amount": "1000000000000000", "decimals": 6, "uiAmountString": "1000000000"},
			},
		}
	})

	supply, err := NewHTTPClient(server.URL).GetTokenSupply(context.Background(), "mint")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply.Amount != "1000000000000000" || supply.Decimals != 6 {
		t.Errorf("unexpected supply: %+v", supply)
	}
}

func TestHTTPClient_GetTokenSupply_EmptyValue(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{"result": map[string]interface{}{"value": nil}}
	})

	_, err := NewHTTPClient(server.URL).GetTokenSupply(context.Background(), "mint")
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestHTTPClient_GetTokenAccounts(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getTokenAccounts" {
			t.Errorf("expected method getTokenAccounts, got %s", req.Method)
		}
		params, ok := req.Params.(map[string]interface{})
		if !ok {
			t.Fatalf("expected object params, got %T", req.Params)
		}
		if params["mint"] != "mint" || params["page"] != float64(2) || params["limit"] != float64(1000) {
			t.Errorf("unexpected params: %v", params)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"total": 2,
				"limit": 1000,
				"page":  2,
				"token_accounts": []map[string]interface{}{
					{"address": "acc1", "mint": "mint", "owner": "owner1", "amount": uint64(18446744073709551615)},
					{"address": "acc2", "mint": "mint", "owner": "owner2", "amount": 5},
				},
			},
		}
	})

	page, err := NewHTTPClient(server.URL).GetTokenAccounts(context.Background(), "mint", 2, 1000)
	if err != nil {
		t.Fatalf("GetTokenAccounts: %v", err)
	}
	if page.Total != 2 || len(page.Accounts) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Accounts[0].Amount != 18446744073709551615 {
		t.Errorf("amount lost precision: %d", page.Accounts[0].Amount)
	}
	if page.Accounts[1].Owner != "owner2" || page.Accounts[1].Address != "acc2" {
		t.Errorf("unexpected account: %+v", page.Accounts[1])
	}
}

func TestHTTPClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).GetBlockTime(context.Background(), 1)

	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusTooManyRequests || statusErr.Body != "slow down" {
		t.Errorf("unexpected status error: %+v", statusErr)
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid params",
			},
		}
	})

	_, err := NewHTTPClient(server.URL).GetBlockTime(context.Background(), 1)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T", err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("expected code -32602, got %d", rpcErr.Code)
	}
	if rpcErr.Retryable() {
		t.Error("invalid params must not be retryable")
	}
}

func TestRPCError_Retryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{-32600, false},
		{-32601, false},
		{-32602, false},
		{-32603, true},
		{-32005, true},
		{-32009, true},
		{-1, false},
	}

	for _, tt := range tests {
		if got := (&RPCError{Code: tt.code}).Retryable(); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestHTTPClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).GetBlockTime(context.Background(), 1)
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestHTTPClient_MissingEndpoint(t *testing.T) {
	_, err := NewHTTPClient("").GetTokenSupply(context.Background(), "mint")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetBlockTime(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
