package domain

import "fmt"

// Warning codes reported alongside a successful result.
const (
	WarningQuantityCapped  = "QUANTITY_CAPPED"
	WarningQuantityLimit   = "QUANTITY_LIMIT"
	WarningPriceChanged    = "PRICE_CHANGED"
	WarningStockReduced    = "STOCK_REDUCED"
	WarningProductInactive = "PRODUCT_INACTIVE"
	WarningProductRemoved  = "PRODUCT_REMOVED"
)

// Warning is a soft reconciliation notice: the cart was updated (or inspected)
// but differs from what the caller asked for or last saw. Applied is always
// serialized; zero means none of the requested units were kept.
type Warning struct {
	Code      string `json:"code"`
	ProductID string `json:"product_id"`
	Requested int    `json:"requested,omitempty"`
	Applied   int    `json:"applied"`
	Message   string `json:"message"`
}

// StockCapped reports a quantity reduced to the available stock.
func StockCapped(productID string, requested, available int) Warning {
	return Warning{
		Code:      WarningQuantityCapped,
		ProductID: productID,
		Requested: requested,
		Applied:   available,
		Message:   fmt.Sprintf("only %d of %d requested units are in stock", available, requested),
	}
}

// LimitCapped reports a quantity reduced to the per-line ceiling.
func LimitCapped(productID string, requested, limit int) Warning {
	return Warning{
		Code:      WarningQuantityLimit,
		ProductID: productID,
		Requested: requested,
		Applied:   limit,
		Message:   fmt.Sprintf("quantity limited to %d per product", limit),
	}
}

// Result is the outcome of a successful cart mutation.
type Result struct {
	Cart     *Cart     `json:"cart"`
	Warnings []Warning `json:"warnings,omitempty"`
}
