package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinLedger/internal/core"
	"FinLedger/internal/custody"
	"FinLedger/internal/fpmath"
	"FinLedger/internal/liquidation"
	"FinLedger/internal/observability"
	"FinLedger/internal/oracle"
	"FinLedger/internal/position"
	"FinLedger/internal/query"
	"FinLedger/internal/settlement"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type serverFixture struct {
	server *Server
	core   *core.Core
	clock  *oracle.ManualClock
	health *observability.HealthChecker
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	clock := oracle.NewManualClock(1_000, time.Unix(1_700_000_000, 0))
	vault := custody.NewVault(zerolog.Nop())
	if err := vault.TransferIn(context.Background(), "SOL", 100_000*fpmath.TokenConfig.Scale); err != nil {
		t.Fatalf("fund vault: %v", err)
	}

	engine := core.New(core.DefaultConfig(), clock, vault, settlement.NewLogSettler(zerolog.Nop()),
		nil, nil, observability.NewTestMetrics(), zerolog.Nop())

	health := observability.NewHealthChecker()
	srv, err := New(":0", ":0", Deps{
		Core:         engine,
		QueryService: query.NewService(nil),
		Health:       health,
		Metrics:      observability.NewTestMetrics(),
		Log:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &serverFixture{server: srv, core: engine, clock: clock, health: health}
}

func (f *serverFixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

const openBody = `{
	"owner_id": "11111111-2222-3333-4444-555555555555",
	"collateral_asset": "SOL",
	"financed_asset": "USDC",
	"collateral_amount": 2000000000000,
	"collateral_decimals": 9,
	"collateral_usd_value": 10000000000000,
	"financing_amount": 50000000000,
	"initial_ltv_bps": 5000,
	"max_ltv_bps": 8000,
	"liquidation_threshold_bps": 8500,
	"term_start": 1,
	"term_end": 2000000000
}`

func TestOpenPositionEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/positions", []byte(openBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := uuid.Parse(resp["position_id"])
	if err != nil {
		t.Fatalf("position_id %q: %v", resp["position_id"], err)
	}
	if _, err := f.core.Ledger().Get(id); err != nil {
		t.Errorf("opened position not in ledger: %v", err)
	}
}

func TestOpenPositionEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"empty params", "{}", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/positions", []byte(tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestLiquidateEndpointHealthyPosition(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/positions", []byte(openBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("open: %d %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)

	f.core.Feed().Publish("SOL", 50*fpmath.UsdConfig.Scale, 0, f.clock.Now())
	f.clock.Advance(5)

	// 50% LTV is nowhere near the threshold: 409.
	rec = f.do(t, http.MethodPost, "/v1/positions/"+resp["position_id"]+"/liquidate", []byte(`{"pct": 50}`))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
}

func TestLiquidateEndpointUnknownPosition(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/positions/"+uuid.NewString()+"/liquidate", []byte(`{"pct": 50}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (body %s)", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/v1/positions/not-a-uuid/liquidate", []byte(`{"pct": 50}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad uuid status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newServerFixture(t)

	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready = %d, want 503", rec.Code)
	}

	f.health.SetReady(true)
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("/readyz after ready = %d, want 200", rec.Code)
	}

	if rec := f.do(t, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", rec.Code)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{position.ErrPositionNotFound, http.StatusNotFound},
		{position.ErrUnauthorized, http.StatusForbidden},
		{position.ErrLiquidationInProgress, http.StatusConflict},
		{position.ErrInvalidLtvOrdering, http.StatusUnprocessableEntity},
		{oracle.ErrPriceDeviationTooHigh, http.StatusUnprocessableEntity},
		{liquidation.ErrInvalidPercentage, http.StatusUnprocessableEntity},
		{liquidation.ErrLiquidationNotTriggered, http.StatusConflict},
		{liquidation.ErrPriceUpdateTooRecent, http.StatusConflict},
		{settlement.ErrNotMatured, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		mapped := domainError(tt.err)
		var he httpError
		if !errors.As(mapped, &he) {
			t.Errorf("domainError(%v) is not an httpError", tt.err)
			continue
		}
		if he.code != tt.want {
			t.Errorf("domainError(%v) = %d, want %d", tt.err, he.code, tt.want)
		}
	}

	// Unrecognized errors pass through unchanged.
	plain := errors.New("boom")
	if got := domainError(plain); got != plain {
		t.Errorf("unknown error rewritten to %v", got)
	}
}
