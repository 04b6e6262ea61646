package server

import (
	"SynthLedger/internal/core"
	"SynthLedger/internal/ledger"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var testSecret = []byte("test-secret")

func testAddr(b byte) ledger.Address {
	var a ledger.Address
	a[19] = b
	return a
}

func testMarketHex(b byte) string {
	var h ledger.Hash
	h[31] = b
	return h.Hex()
}

// newTestServer boots an engine with testAddr(1) as governance and sole
// access member, wires the HTTP server and returns the httptest server.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	persistChan := make(chan core.Output, 256)
	projectionChan := make(chan core.Output, 256)
	st := ledger.NewState(testAddr(1))
	engine := core.NewEngine(st, 0, persistChan, projectionChan, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	t.Cleanup(cancel)

	// Drain emitted records so blocking persist sends never stall.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-persistChan:
			}
		}
	}()

	auth := NewAuthenticator(testSecret)
	srv := New(engine, auth, nil, zerolog.Nop())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, caller *ledger.Address, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if caller != nil {
		token, err := SignCallerToken(testSecret, *caller)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestMutationRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodPost, "/v1/mint", nil,
		`{"addr":"`+testAddr(2).Hex()+`","amount":"1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMintAndReadBalance(t *testing.T) {
	ts := newTestServer(t)
	platform := testAddr(1)
	holder := testAddr(2)

	resp := doRequest(t, ts, http.MethodPost, "/v1/mint", &platform,
		`{"addr":"`+holder.Hex()+`","amount":"2000000"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/balances/"+holder.Hex(), nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["balance"] != "2000000" {
		t.Errorf("balance = %v, want 2000000", body["balance"])
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/supply", nil, "")
	if got := decodeBody(t, resp)["total_supply"]; got != "2000000" {
		t.Errorf("total_supply = %v, want 2000000", got)
	}
}

func TestUnauthorizedCallerGetsForbidden(t *testing.T) {
	ts := newTestServer(t)
	outsider := testAddr(9)

	resp := doRequest(t, ts, http.MethodPost, "/v1/mint", &outsider,
		`{"addr":"`+testAddr(2).Hex()+`","amount":"1"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if got := decodeBody(t, resp)["error"]; got != "Only Platform" {
		t.Errorf("error = %v, want Only Platform", got)
	}
}

func TestPausedMintGetsLocked(t *testing.T) {
	ts := newTestServer(t)
	platform := testAddr(1)
	admin := testAddr(3)

	resp := doRequest(t, ts, http.MethodPut, "/v1/roles/administrator", &platform,
		`{"addr":"`+admin.Hex()+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set administrator status = %d", resp.StatusCode)
	}
	resp = doRequest(t, ts, http.MethodPost, "/v1/pause", &admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, "/v1/mint", &platform,
		`{"addr":"`+testAddr(2).Hex()+`","amount":"1"}`)
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("mint while paused status = %d, want 423", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/paused", nil, "")
	if got := decodeBody(t, resp)["paused"]; got != true {
		t.Errorf("paused = %v, want true", got)
	}
}

func TestBurnBeyondBalanceGetsConflict(t *testing.T) {
	ts := newTestServer(t)
	platform := testAddr(1)
	holder := testAddr(2)

	doRequest(t, ts, http.MethodPost, "/v1/mint", &platform,
		`{"addr":"`+holder.Hex()+`","amount":"100"}`)

	resp := doRequest(t, ts, http.MethodPost, "/v1/burn", &platform,
		`{"addr":"`+holder.Hex()+`","amount":"101"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRewardBasisPointsOutOfRangeGetsBadRequest(t *testing.T) {
	ts := newTestServer(t)
	governance := testAddr(1)

	resp := doRequest(t, ts, http.MethodPut, "/v1/params/reward-basis-points", &governance,
		`{"basis_points":65000}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPut, "/v1/params/reward-basis-points", &governance,
		`{"basis_points":14000}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/params/reward-basis-points", nil, "")
	if got := decodeBody(t, resp)["basis_points"]; got != float64(14000) {
		t.Errorf("basis_points = %v, want 14000", got)
	}
}

func TestMarketLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	governance := testAddr(1)
	admin := testAddr(3)
	market := testMarketHex(1)

	doRequest(t, ts, http.MethodPut, "/v1/roles/administrator", &governance,
		`{"addr":"`+admin.Hex()+`"}`)

	resp := doRequest(t, ts, http.MethodPut, "/v1/markets/"+market, &admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/markets/"+market, nil, "")
	if got := decodeBody(t, resp)["active"]; got != true {
		t.Errorf("active = %v, want true", got)
	}

	resp = doRequest(t, ts, http.MethodDelete, "/v1/markets/"+market, &admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status = %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/markets/"+market, nil, "")
	if got := decodeBody(t, resp)["active"]; got != false {
		t.Errorf("active = %v, want false", got)
	}
}

func TestSetAndGetPositionOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	platform := testAddr(1)
	holder := testAddr(2)
	market := testMarketHex(1)

	resp := doRequest(t, ts, http.MethodPut,
		"/v1/positions/"+holder.Hex()+"/"+market, &platform,
		`{"timestamp":12345,"long_shares":"2000","short_shares":"0",
		  "mean_entry_price":"200","mean_entry_spread":"1",
		  "mean_entry_leverage":"100000000","liquidation_price":"190"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set position status = %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet,
		"/v1/positions/"+holder.Hex()+"/"+market, nil, "")
	body := decodeBody(t, resp)
	if body["long_shares"] != "2000" {
		t.Errorf("long_shares = %v, want 2000", body["long_shares"])
	}
	if body["liquidation_price"] != "190" {
		t.Errorf("liquidation_price = %v, want 190", body["liquidation_price"])
	}
}

func TestInvalidAddressGetsBadRequest(t *testing.T) {
	ts := newTestServer(t)
	platform := testAddr(1)

	resp := doRequest(t, ts, http.MethodPost, "/v1/mint", &platform,
		`{"addr":"not-an-address","amount":"1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBadTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/pause", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
