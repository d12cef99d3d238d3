// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — services run over small
// in-memory stubs. They verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - API key middleware (401 without key, 401 with a wrong key)
//   - Domain error → status code mapping (404/409)
//   - Response format consistency (success/error envelope)
//   - Plan preview (pure, no stores behind it)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/api"
	"github.com/virelabs/launchpad/internal/config"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/plan"
	"github.com/virelabs/launchpad/internal/retry"
	"github.com/virelabs/launchpad/internal/service"
	"github.com/virelabs/launchpad/internal/ws"
)

const testAPIKey = "test-key-abcdefghijklmnop"

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:    "development",
			Port:   "8080",
			APIKey: testAPIKey,
		},
	}
}

func testPlanCfg() plan.Config {
	return plan.Config{
		OverheadPerSlot:       5_000,
		MinViableTransfer:     1_000_000,
		LargeSlotFraction:     0.2,
		LargeWeightMultiplier: 3,
	}
}

// ── In-memory store stubs ─────────────────────────────────────────────────────

// stubPoolStore serves a fixed inventory; mutations that make no sense over
// HTTP smoke tests answer with the matching domain error.
type stubPoolStore struct {
	items map[string]*domain.PoolItem
}

func newStubPoolStore(items ...*domain.PoolItem) *stubPoolStore {
	s := &stubPoolStore{items: make(map[string]*domain.PoolItem)}
	for _, it := range items {
		s.items[it.Identifier] = it
	}
	return s
}

func (s *stubPoolStore) Claim(context.Context, uuid.UUID, domain.ClaimFilter) (*domain.PoolItem, error) {
	return nil, domain.ErrPoolExhausted
}
func (s *stubPoolStore) Release(context.Context, string, uuid.UUID) error { return nil }
func (s *stubPoolStore) MarkDepleted(context.Context, string) error {
	return domain.ErrPoolItemNotFound
}
func (s *stubPoolStore) MarkErrored(context.Context, string, string) error {
	return domain.ErrPoolItemNotFound
}
func (s *stubPoolStore) ResetErrored(context.Context, string) error {
	return domain.ErrItemNotErrored
}

func (s *stubPoolStore) GetByIdentifier(_ context.Context, identifier string) (*domain.PoolItem, error) {
	if it, ok := s.items[identifier]; ok {
		return it, nil
	}
	return nil, domain.ErrPoolItemNotFound
}

func (s *stubPoolStore) CountByStatus(context.Context) (domain.PoolStats, error) {
	var stats domain.PoolStats
	for _, it := range s.items {
		switch it.Status {
		case domain.ItemAvailable:
			stats.Available++
		case domain.ItemClaimed:
			stats.Claimed++
		case domain.ItemDepleted:
			stats.Depleted++
		case domain.ItemErrored:
			stats.Errored++
		}
	}
	return stats, nil
}

func (s *stubPoolStore) ReleaseStale(context.Context, time.Duration) ([]string, error) {
	return nil, nil
}

func (s *stubPoolStore) Create(_ context.Context, item *domain.PoolItem) error {
	s.items[item.Identifier] = item
	return nil
}

// stubReserveStore knows no mints at all.
type stubReserveStore struct{}

func (stubReserveStore) Get(context.Context, string) (domain.ReserveSnapshot, error) {
	return domain.ReserveSnapshot{}, domain.ErrReserveNotFound
}
func (stubReserveStore) CompareAndSwap(context.Context, string, int64, domain.ReserveState) error {
	return domain.ErrReserveConflict
}
func (stubReserveStore) Create(context.Context, string, domain.ReserveState) error { return nil }

// buildTestRouterWith creates a Gin engine over the given pool inventory.
func buildTestRouterWith(t *testing.T, pool *stubPoolStore, hub *ws.Hub) http.Handler {
	t.Helper()
	cfg := testCfg()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.Policy{MaxAttempts: 1}

	poolSvc := service.NewPoolService(pool, logger)
	quoteSvc := service.NewQuoteService(stubReserveStore{}, policy, logger)

	return api.SetupRouter(api.RouterDeps{
		PoolSvc:        poolSvc,
		QuoteSvc:       quoteSvc,
		LaunchSvc:      nil,
		PoolRepo:       nil,
		SettlementRepo: nil,
		PlanCfg:        testPlanCfg(),
		Hub:            hub,
		Cfg:            cfg,
	})
}

func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return buildTestRouterWith(t, newStubPoolStore(), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

func withKey() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

func TestHealthEndpoint_ReportsWsClients(t *testing.T) {
	h := buildTestRouterWith(t, newStubPoolStore(), ws.NewHub(nil))
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if count, ok := body["ws_clients"].(float64); !ok || count != 0 {
		t.Errorf("ws_clients = %v, want 0 with no connections", body["ws_clients"])
	}
}

// ── API key middleware (no key → 401) ─────────────────────────────────────────

func TestClaim_NoKey_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"holder_id":"11111111-1111-1111-1111-111111111111","kind":"wallet"}`
	rr := do(t, h, http.MethodPost, "/api/pool/claim", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/pool/claim without key = %d, want 401", rr.Code)
	}
}

func TestLaunch_NoKey_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"total_lamports":50000000000,"slot_count":40}`
	rr := do(t, h, http.MethodPost, "/api/launches", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/launches without key = %d, want 401", rr.Code)
	}
}

func TestCommitBuy_WrongKey_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/quotes/MINT/buy", `{"base_in":"1000"}`, map[string]string{
		"X-API-Key": "definitely-not-the-key",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/quotes/:mint/buy with wrong key = %d, want 401", rr.Code)
	}
}

func TestClaim_BearerKey_Accepted(t *testing.T) {
	h := buildTestRouter(t)
	// Bad holder_id so the handler stops at validation after auth passes.
	payload := `{"holder_id":"not-a-uuid","kind":"wallet"}`
	rr := do(t, h, http.MethodPost, "/api/pool/claim", payload, map[string]string{
		"Authorization": "Bearer " + testAPIKey,
	})
	if rr.Code == http.StatusUnauthorized {
		t.Errorf("Bearer-carried key should authenticate, got 401")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/pool/claim bad holder_id = %d, want 400", rr.Code)
	}
}

// ── Validation layer ──────────────────────────────────────────────────────────

func TestClaim_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/pool/claim", `{}`, withKey())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/pool/claim empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestQuoteBuy_InvalidAmount(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/quotes/MINT/buy?base_in=-5", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative base_in = %d, want 400", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/api/quotes/MINT/buy?base_in=abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric base_in = %d, want 400", rr.Code)
	}
}

func TestGetBatch_InvalidID(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/batches/not-a-uuid", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/batches/not-a-uuid = %d, want 400", rr.Code)
	}
}

// ── Plan preview (pure endpoint, fully functional without stores) ─────────────

func TestPreviewPlan_ConservesTotal(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"total_lamports":50000000000,"slot_count":40,"seed":42}`
	rr := do(t, h, http.MethodPost, "/api/distributions/plan", payload, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /api/distributions/plan = %d, want 200 — body: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	planObj, _ := data["plan"].(map[string]interface{})
	amounts, _ := planObj["amounts"].([]interface{})
	if len(amounts) != 40 {
		t.Fatalf("plan has %d slots, want 40", len(amounts))
	}

	var spend float64
	for _, a := range amounts {
		n, _ := a.(float64)
		spend += n
	}
	budget := float64(50_000_000_000 - 40*5_000)
	if spend > budget {
		t.Errorf("plan spends %.0f, exceeds spendable budget %.0f", spend, budget)
	}
}

func TestPreviewPlan_SeedIsDeterministic(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"total_lamports":50000000000,"slot_count":10,"seed":7}`

	first := do(t, h, http.MethodPost, "/api/distributions/plan", payload, nil)
	second := do(t, h, http.MethodPost, "/api/distributions/plan", payload, nil)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("plan preview failed: %d / %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("identically seeded previews must match byte for byte")
	}
}

func TestPreviewPlan_InsufficientTotal(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"total_lamports":1000,"slot_count":40}`
	rr := do(t, h, http.MethodPost, "/api/distributions/plan", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("underfunded plan = %d, want 400", rr.Code)
	}
}

// ── Public routes ─────────────────────────────────────────────────────────────

func TestPoolStats_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/pool/stats", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/pool/stats without key = %d, want 200", rr.Code)
	}
}

func TestPoolStats_IncludesTotal(t *testing.T) {
	pool := newStubPoolStore(
		&domain.PoolItem{Identifier: "a", Status: domain.ItemAvailable},
		&domain.PoolItem{Identifier: "b", Status: domain.ItemClaimed},
		&domain.PoolItem{Identifier: "c", Status: domain.ItemDepleted},
	)
	h := buildTestRouterWith(t, pool, nil)

	rr := do(t, h, http.MethodGet, "/api/pool/stats", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/pool/stats = %d, want 200", rr.Code)
	}
	data, _ := decodeBody(t, rr)["data"].(map[string]interface{})
	if total, _ := data["total"].(float64); total != 3 {
		t.Errorf("stats total = %v, want 3", data["total"])
	}
}

// ── Domain error mapping ──────────────────────────────────────────────────────

func TestGetItem_UnknownIdentifier_Returns404(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/pool/items/ghost", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET unknown pool item = %d, want 404", rr.Code)
	}
	if body := decodeBody(t, rr); body["code"] != "ERR_NOT_FOUND" {
		t.Errorf("code = %v, want ERR_NOT_FOUND", body["code"])
	}
}

func TestGetItem_ReportsBalanceSOL(t *testing.T) {
	pool := newStubPoolStore(&domain.PoolItem{
		Identifier:      "w1",
		Kind:            domain.KindWallet,
		Status:          domain.ItemAvailable,
		BalanceLamports: 2_500_000_000,
		CreatedAt:       time.Now().UTC(),
	})
	h := buildTestRouterWith(t, pool, nil)

	rr := do(t, h, http.MethodGet, "/api/pool/items/w1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/pool/items/w1 = %d, want 200", rr.Code)
	}
	data, _ := decodeBody(t, rr)["data"].(map[string]interface{})
	if got, _ := data["balance_sol"].(string); got != "2.5" {
		t.Errorf("balance_sol = %v, want \"2.5\"", data["balance_sol"])
	}
}

func TestQuoteBuy_UnknownMint_Returns404(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/quotes/UNKNOWNMINT/buy?base_in=1000", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("quote for unknown mint = %d, want 404", rr.Code)
	}
	if body := decodeBody(t, rr); body["code"] != "ERR_MINT_NOT_FOUND" {
		t.Errorf("code = %v, want ERR_MINT_NOT_FOUND", body["code"])
	}
}

// ── Item provisioning ─────────────────────────────────────────────────────────

func TestCreateItem_StampsTimestamps(t *testing.T) {
	h := buildTestRouter(t)
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	payload := `{"identifier":"` + key.PublicKey().String() + `","kind":"wallet","secret":"` + key.String() + `"}`
	before := time.Now().UTC()
	rr := do(t, h, http.MethodPost, "/api/pool/items", payload, withKey())
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST /api/pool/items = %d, want 201 — body: %s", rr.Code, rr.Body.String())
	}

	data, _ := decodeBody(t, rr)["data"].(map[string]interface{})
	raw, _ := data["created_at"].(string)
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t.Fatalf("created_at %q is not a timestamp: %v", raw, err)
	}
	if createdAt.IsZero() || createdAt.Before(before.Add(-time.Second)) {
		t.Errorf("created_at = %v, want stamped at provisioning time", createdAt)
	}
	if _, ok := data["secret"]; ok {
		t.Error("secret must never be serialised")
	}
}

func TestCreateItem_MismatchedSecret_Returns400(t *testing.T) {
	h := buildTestRouter(t)
	identity, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	other, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	payload := `{"identifier":"` + identity.PublicKey().String() + `","kind":"wallet","secret":"` + other.String() + `"}`
	rr := do(t, h, http.MethodPost, "/api/pool/items", payload, withKey())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("POST mismatched keypair = %d, want 400", rr.Code)
	}
	if body := decodeBody(t, rr); body["code"] != "ERR_SECRET_MISMATCH" {
		t.Errorf("code = %v, want ERR_SECRET_MISMATCH", body["code"])
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/pool/claim", `{}`, withKey())
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/pool/claim", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// OPTIONS should return 204 (no content) in dev mode
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/pool/claim = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
