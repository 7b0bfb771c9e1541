package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/naman3006/E-commerce-sub001/internal/access"
	"github.com/naman3006/E-commerce-sub001/pkg/httputil"
	"github.com/naman3006/E-commerce-sub001/pkg/middleware"
	"github.com/naman3006/E-commerce-sub001/pkg/validator"
)

// AdminHandler serves the support-staff view of any owner's cart. Routes are
// mounted behind bearer-token auth and the admin role check.
type AdminHandler struct {
	access *access.Service
	logger *slog.Logger
}

// NewAdminHandler creates a new admin cart handler.
func NewAdminHandler(svc *access.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{access: svc, logger: logger}
}

func adminScope(r *http.Request) access.Scope {
	return access.Admin(middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "ownerId"))
}

// GetCart handles GET /api/v1/admin/carts/{ownerId}
func (h *AdminHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.access.GetCart(r.Context(), adminScope(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(snap.Cart, nil)})
}

// AddItem handles POST /api/v1/admin/carts/{ownerId}/items
func (h *AdminHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.access.AddItem(r.Context(), adminScope(r), req.ProductID, req.Quantity)
	writeResult(w, r, h.logger, res, err)
}

// UpdateItem handles PATCH /api/v1/admin/carts/{ownerId}/items/{productId}
func (h *AdminHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.access.UpdateItem(r.Context(), adminScope(r), chi.URLParam(r, "productId"), *req.Quantity)
	writeResult(w, r, h.logger, res, err)
}

// RemoveItem handles DELETE /api/v1/admin/carts/{ownerId}/items/{productId}
func (h *AdminHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.access.RemoveItem(r.Context(), adminScope(r), chi.URLParam(r, "productId"))
	writeResult(w, r, h.logger, res, err)
}

// ClearCart handles DELETE /api/v1/admin/carts/{ownerId}
func (h *AdminHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	res, err := h.access.ClearCart(r.Context(), adminScope(r))
	writeResult(w, r, h.logger, res, err)
}
