package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/naman3006/E-commerce-sub001/internal/access"
	"github.com/naman3006/E-commerce-sub001/internal/domain"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
	"github.com/naman3006/E-commerce-sub001/pkg/httputil"
	"github.com/naman3006/E-commerce-sub001/pkg/validator"
)

// CartHandler handles the self-service cart endpoints.
type CartHandler struct {
	access *access.Service
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *access.Service, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		access: svc,
		logger: logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128,product_id"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// UpdateQuantityRequest is the JSON request body for setting a line quantity.
// Zero removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// MergeRequest is the optional JSON body for merging a session cart on login.
// The session merged is always the one presented in X-Session-ID; a body
// session_id that names any other session is rejected.
type MergeRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// --- Response bodies ---

type cartView struct {
	OwnerID   string            `json:"owner_id"`
	Items     []domain.CartLine `json:"items"`
	Version   int64             `json:"version"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

type cartResponse struct {
	Cart     cartView         `json:"cart"`
	Totals   domain.Totals    `json:"totals"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
}

func newCartView(c *domain.Cart) cartView {
	v := cartView{
		OwnerID: c.OwnerID,
		Items:   c.SortedLines(),
		Version: c.Version,
	}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt
		v.UpdatedAt = &updated
	}
	return v
}

func newCartResponse(c *domain.Cart, warnings []domain.Warning) cartResponse {
	return cartResponse{
		Cart:     newCartView(c),
		Totals:   domain.ComputeTotals(c),
		Warnings: warnings,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.access.GetCart(r.Context(), access.Self(ownerFromContext(r.Context())))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(snap.Cart, nil)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.access.AddItem(r.Context(), access.Self(ownerFromContext(r.Context())), req.ProductID, req.Quantity)
	writeResult(w, r, h.logger, res, err)
}

// UpdateItem handles PATCH (and PUT) /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.access.UpdateItem(r.Context(), access.Self(ownerFromContext(r.Context())), chi.URLParam(r, "productId"), *req.Quantity)
	writeResult(w, r, h.logger, res, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.access.RemoveItem(r.Context(), access.Self(ownerFromContext(r.Context())), chi.URLParam(r, "productId"))
	writeResult(w, r, h.logger, res, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	res, err := h.access.ClearCart(r.Context(), access.Self(ownerFromContext(r.Context())))
	writeResult(w, r, h.logger, res, err)
}

// ValidateCart handles GET /api/v1/cart/validate
func (h *CartHandler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	res, err := h.access.ValidateCart(r.Context(), access.Self(ownerFromContext(r.Context())))
	writeResult(w, r, h.logger, res, err)
}

// MergeCart handles POST /api/v1/cart/merge
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	sessionID, err := mergeSessionID(r, req.SessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.access.MergeSession(r.Context(), access.Self(ownerFromContext(r.Context())), sessionID)
	writeResult(w, r, h.logger, res, err)
}

// mergeSessionID returns the session the caller holds. The gateway only
// forwards X-Session-ID for the browser's own session, so that header is the
// proof of possession; a body value can only restate it.
func mergeSessionID(r *http.Request, claimed string) (string, error) {
	held := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if held == "" {
		return "", apperrors.InvalidInput(HeaderSessionID + " header is required to merge a session cart")
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && claimed != held {
		return "", apperrors.Forbidden("cannot merge a session the caller does not hold")
	}
	return held, nil
}

// --- Helpers ---

func writeResult(w http.ResponseWriter, r *http.Request, logger *slog.Logger, res *domain.Result, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(res.Cart, res.Warnings)})
}
