package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

// Cart error sentinels. Each is wrapped by an *apperrors.AppError carrying the
// HTTP mapping, so callers match with errors.Is.
var (
	ErrProductNotFound        = errors.New("product not found")
	ErrProductInactive        = errors.New("product inactive")
	ErrLineNotFound           = errors.New("cart line not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrCatalogUnavailable     = errors.New("catalog unavailable")
)

// ProductNotFound is returned when the catalog has no such product.
func ProductNotFound(productID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "PRODUCT_NOT_FOUND",
		Message: fmt.Sprintf("product %s does not exist", productID),
		Status:  http.StatusNotFound,
		Err:     ErrProductNotFound,
	}
}

// ProductInactive is returned when the product exists but is discontinued.
func ProductInactive(productID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "PRODUCT_INACTIVE",
		Message: fmt.Sprintf("product %s is no longer available", productID),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrProductInactive,
	}
}

// LineNotFound is returned when updating a product the cart does not hold.
func LineNotFound(productID string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "LINE_NOT_FOUND",
		Message: fmt.Sprintf("cart has no line for product %s", productID),
		Status:  http.StatusNotFound,
		Err:     ErrLineNotFound,
	}
}

// ConcurrentModification is returned by a store when the stored version no
// longer matches the version the caller loaded.
func ConcurrentModification(ownerID string, expected int64) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "CONCURRENT_MODIFICATION",
		Message: fmt.Sprintf("cart for %s changed since version %d, please retry", ownerID, expected),
		Status:  http.StatusConflict,
		Err:     ErrConcurrentModification,
	}
}

// CatalogUnavailable is returned when the catalog cannot answer in time.
// No cart state is committed when it is returned.
func CatalogUnavailable(cause error) *apperrors.AppError {
	return &apperrors.AppError{
		Code:       "CATALOG_UNAVAILABLE",
		Message:    "product catalog is temporarily unavailable, please retry",
		Status:     http.StatusServiceUnavailable,
		RetryAfter: time.Second,
		Err:        errors.Join(ErrCatalogUnavailable, cause),
	}
}
