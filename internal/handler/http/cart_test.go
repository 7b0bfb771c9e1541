package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naman3006/E-commerce-sub001/internal/access"
	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	catalogmemory "github.com/naman3006/E-commerce-sub001/internal/catalog/memory"
	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/internal/event"
	"github.com/naman3006/E-commerce-sub001/internal/repository"
	"github.com/naman3006/E-commerce-sub001/internal/repository/memory"
	"github.com/naman3006/E-commerce-sub001/internal/service"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
	"github.com/naman3006/E-commerce-sub001/pkg/health"
	"github.com/naman3006/E-commerce-sub001/pkg/httputil"
	"github.com/naman3006/E-commerce-sub001/pkg/middleware"
)

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	router  http.Handler
	catalog *catalogmemory.Gateway
	store   repository.CartStore
}

// fakeTokens accepts two fixed bearer tokens so the admin routes can be
// exercised without signing JWTs.
func fakeTokens(token string) (*middleware.Claims, error) {
	switch token {
	case "admin-token":
		return &middleware.Claims{UserID: "staff-1", Role: "admin"}, nil
	case "customer-token":
		return &middleware.Claims{UserID: "user-1", Role: "customer"}, nil
	default:
		return nil, apperrors.Unauthorized("bad token")
	}
}

func newTestEnvWithStore(t *testing.T, store repository.CartStore, validate middleware.TokenValidator) *testEnv {
	t.Helper()
	logger := testLogger()
	gw := catalogmemory.NewGateway(
		catalog.Product{ID: "p1", Price: decimal.RequireFromString("10.00"), Stock: 5, Active: true},
		catalog.Product{ID: "p2", Price: decimal.RequireFromString("2.50"), Stock: 100, Active: true},
		catalog.Product{ID: "retired", Price: decimal.RequireFromString("1.00"), Stock: 10, Active: false},
	)
	engine := service.NewCartService(store, gw, event.Noop{}, logger, time.Second)
	svc := access.NewService(engine, logger, 1)

	router := NewRouter(svc, validate, health.NewHandler(), logger, RouterConfig{CORS: middleware.DefaultCORSConfig()})
	return &testEnv{router: router, catalog: gw, store: store}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, memory.NewCartRepository(), fakeTokens)
}

type envelope struct {
	Data  *cartResponse           `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func user(id string) map[string]string    { return map[string]string{HeaderUserID: id} }
func session(id string) map[string]string { return map[string]string{HeaderSessionID: id} }

// ============================================================================
// Owner resolution
// ============================================================================

func TestGetCart_NoIdentity_Returns401(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/cart", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestGetCart_EmptyCartForNewOwner(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/cart", nil, user("user-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "user-1", resp.Data.Cart.OwnerID)
	assert.Equal(t, int64(0), resp.Data.Cart.Version)
	assert.Empty(t, resp.Data.Cart.Items)
	assert.Equal(t, 0, resp.Data.Totals.ItemCount)

	_, err := env.store.Load(context.Background(), "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "reads must not create a cart")
}

func TestSessionHeader_UsesAnonymousOwner(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p2", Quantity: 1}, session("sess-9"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anon:sess-9", resp.Data.Cart.OwnerID)
}

func TestUserHeader_WinsOverSession(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/cart", nil,
		map[string]string{HeaderUserID: "user-1", HeaderSessionID: "sess-9"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", resp.Data.Cart.OwnerID)
}

// ============================================================================
// AddItem
// ============================================================================

func TestAddItem_Success(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p1", Quantity: 2}, user("user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, int64(1), resp.Data.Cart.Version)
	require.Len(t, resp.Data.Cart.Items, 1)
	assert.Equal(t, 2, resp.Data.Cart.Items[0].Quantity)
	assert.Equal(t, "10", resp.Data.Cart.Items[0].UnitPriceSnapshot.String())
	assert.Equal(t, 2, resp.Data.Totals.ItemCount)
	assert.Equal(t, "20", resp.Data.Totals.Subtotal.String())
	assert.Empty(t, resp.Data.Warnings)
}

func TestAddItem_CappedToStock_ReturnsWarning(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p1", Quantity: 8}, user("user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data.Cart.Items, 1)
	assert.Equal(t, 5, resp.Data.Cart.Items[0].Quantity)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, domain.WarningQuantityCapped, resp.Data.Warnings[0].Code)
	assert.Equal(t, 8, resp.Data.Warnings[0].Requested)
	assert.Equal(t, 5, resp.Data.Warnings[0].Applied)
}

func TestAddItem_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		map[string]any{"product_id": "p1", "quantity": 0}, user("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "Quantity")
}

func TestAddItem_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items", "{not json", user("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestAddItem_AboveLineLimit_Returns400(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p2", Quantity: service.MaxQuantityPerLine + 1}, user("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestAddItem_UnknownProduct_Returns404(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "ghost", Quantity: 1}, user("user-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PRODUCT_NOT_FOUND", resp.Error.Code)
}

func TestAddItem_InactiveProduct_Returns422(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "retired", Quantity: 1}, user("user-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PRODUCT_INACTIVE", resp.Error.Code)
}

func TestAddItem_WrongContentType_Returns415(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("product_id=p1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// conflictStore loses every write race.
type conflictStore struct {
	*memory.CartRepository
}

func (s conflictStore) Save(_ context.Context, cart *domain.Cart) (*domain.Cart, error) {
	return nil, domain.ConcurrentModification(cart.OwnerID, cart.Version)
}

func TestAddItem_ConflictAfterRetries_Returns409(t *testing.T) {
	env := newTestEnvWithStore(t, conflictStore{memory.NewCartRepository()}, fakeTokens)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p1", Quantity: 1}, user("user-1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONCURRENT_MODIFICATION", resp.Error.Code)
}

// downCatalog fails every lookup the way an open breaker does.
type downCatalog struct{}

func (downCatalog) GetProduct(context.Context, string) (*catalog.Product, error) {
	return nil, apperrors.ServiceUnavailable("catalog circuit open").WithRetryAfter(20 * time.Second)
}

func TestAddItem_CatalogDown_Returns503WithRetryAfter(t *testing.T) {
	logger := testLogger()
	engine := service.NewCartService(memory.NewCartRepository(), downCatalog{}, event.Noop{}, logger, time.Second)
	router := NewRouter(access.NewService(engine, logger, 1), nil, health.NewHandler(), logger, RouterConfig{})
	env := &testEnv{router: router}

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/items",
		AddItemRequest{ProductID: "p1", Quantity: 1}, user("user-1"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CATALOG_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))
}

// ============================================================================
// UpdateItem / RemoveItem / ClearCart
// ============================================================================

func TestUpdateItem_PatchAndPutAlias(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 1}, user("user-1"))

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/cart/items/p2", map[string]int{"quantity": 4}, user("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, resp.Data.Totals.ItemCount)
	assert.Equal(t, int64(2), resp.Data.Cart.Version)

	rec, resp = env.do(t, http.MethodPut, "/api/v1/cart/items/p2", map[string]int{"quantity": 6}, user("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, resp.Data.Totals.ItemCount)
	assert.Equal(t, int64(3), resp.Data.Cart.Version)
}

func TestUpdateItem_ZeroRemovesLine(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 3}, user("user-1"))

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/cart/items/p2", map[string]int{"quantity": 0}, user("user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data.Cart.Items)
}

func TestUpdateItem_MissingQuantity_Returns400(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 3}, user("user-1"))

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/cart/items/p2", map[string]any{}, user("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestUpdateItem_LineNotInCart_Returns404(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/cart/items/p2", map[string]int{"quantity": 1}, user("user-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "LINE_NOT_FOUND", resp.Error.Code)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 1}, user("user-1"))

	rec, resp := env.do(t, http.MethodDelete, "/api/v1/cart/items/p2", nil, user("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data.Cart.Items)
	assert.Equal(t, int64(2), resp.Data.Cart.Version)

	rec, resp = env.do(t, http.MethodDelete, "/api/v1/cart/items/p2", nil, user("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), resp.Data.Cart.Version)
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1}, user("user-1"))
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 1}, user("user-1"))

	rec, resp := env.do(t, http.MethodDelete, "/api/v1/cart", nil, user("user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data.Cart.Items)
	assert.True(t, resp.Data.Totals.Subtotal.IsZero())
}

// ============================================================================
// Validate / Merge
// ============================================================================

func TestValidateCart_ReportsPriceDrift(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1}, user("user-1"))
	env.catalog.Set(catalog.Product{ID: "p1", Price: decimal.RequireFromString("12.00"), Stock: 5, Active: true})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/cart/validate", nil, user("user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, domain.WarningPriceChanged, resp.Data.Warnings[0].Code)
	assert.Equal(t, int64(1), resp.Data.Cart.Version, "validation never saves")
}

// loginHeaders is what the gateway forwards on the first request after login:
// the new user id plus the browser's existing session.
func loginHeaders(userID, sessionID string) map[string]string {
	return map[string]string{HeaderUserID: userID, HeaderSessionID: sessionID}
}

func TestMergeCart_FoldsSessionCartIntoUser(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2}, session("sess-1"))
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p2", Quantity: 1}, user("user-1"))

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/merge", nil, loginHeaders("user-1", "sess-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.Cart.Items, 2)
	assert.Equal(t, 3, resp.Data.Totals.ItemCount)

	_, anon := env.do(t, http.MethodGet, "/api/v1/cart", nil, session("sess-1"))
	assert.Empty(t, anon.Data.Cart.Items)
}

func TestMergeCart_BodyRestatingHeldSession(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1}, session("sess-1"))

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/merge", MergeRequest{SessionID: "sess-1"}, loginHeaders("user-1", "sess-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Data.Totals.ItemCount)
}

func TestMergeCart_OtherSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2}, session("victim-sess"))

	tests := []struct {
		name    string
		body    any
		headers map[string]string
		status  int
		code    string
	}{
		{"named in body without holding any session", MergeRequest{SessionID: "victim-sess"}, user("user-9"), http.StatusBadRequest, "INVALID_INPUT"},
		{"named in body while holding another session", MergeRequest{SessionID: "victim-sess"}, loginHeaders("user-9", "own-sess"), http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/merge", tt.body, tt.headers)

			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	_, victim := env.do(t, http.MethodGet, "/api/v1/cart", nil, session("victim-sess"))
	require.Len(t, victim.Data.Cart.Items, 1)
	assert.Equal(t, "p1", victim.Data.Cart.Items[0].ProductID)
	assert.Equal(t, 2, victim.Data.Cart.Items[0].Quantity)

	_, attacker := env.do(t, http.MethodGet, "/api/v1/cart", nil, user("user-9"))
	assert.Empty(t, attacker.Data.Cart.Items)
}

func TestMergeCart_AnonymousCaller_Returns403(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cart/merge", nil, session("sess-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestMergeCart_MissingSession_Returns400(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/cart/merge", map[string]string{}, user("user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Health
// ============================================================================

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
