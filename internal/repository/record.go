package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
)

// CartRecord is the persisted shape of a cart, shared by every backend.
type CartRecord struct {
	OwnerID   string       `json:"owner_id" bson:"owner_id"`
	Items     []LineRecord `json:"items" bson:"items"`
	Version   int64        `json:"version" bson:"version"`
	UpdatedAt time.Time    `json:"updated_at" bson:"updated_at"`
}

// LineRecord is the persisted shape of a cart line. The price snapshot is
// kept as a decimal string so no backend rounds it.
type LineRecord struct {
	ProductID         string    `json:"product_id" bson:"product_id"`
	Quantity          int       `json:"quantity" bson:"quantity"`
	UnitPriceSnapshot string    `json:"unit_price_snapshot" bson:"unit_price_snapshot"`
	AddedAt           time.Time `json:"added_at" bson:"added_at"`
}

// ToRecord converts a cart into its persisted shape. Lines are written in
// the order they were first added.
func ToRecord(c *domain.Cart) CartRecord {
	lines := c.SortedLines()
	rec := CartRecord{
		OwnerID:   c.OwnerID,
		Items:     make([]LineRecord, len(lines)),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
	for i, line := range lines {
		rec.Items[i] = LineRecord{
			ProductID:         line.ProductID,
			Quantity:          line.Quantity,
			UnitPriceSnapshot: line.UnitPriceSnapshot.String(),
			AddedAt:           line.AddedAt,
		}
	}
	return rec
}

// FromRecord validates a persisted record and converts it into a cart.
// Schema-flexible backends can hold anything, so every invariant is checked
// on the way in rather than trusted.
func FromRecord(rec CartRecord) (*domain.Cart, error) {
	if rec.OwnerID == "" {
		return nil, fmt.Errorf("invalid cart record: missing owner id")
	}
	if rec.Version < 0 {
		return nil, fmt.Errorf("invalid cart record for %s: negative version %d", rec.OwnerID, rec.Version)
	}

	cart := domain.NewCart(rec.OwnerID)
	cart.Version = rec.Version
	cart.UpdatedAt = rec.UpdatedAt

	for _, item := range rec.Items {
		if item.ProductID == "" {
			return nil, fmt.Errorf("invalid cart record for %s: line without product id", rec.OwnerID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid cart record for %s: product %s has quantity %d", rec.OwnerID, item.ProductID, item.Quantity)
		}
		if _, dup := cart.Items[item.ProductID]; dup {
			return nil, fmt.Errorf("invalid cart record for %s: duplicate line for product %s", rec.OwnerID, item.ProductID)
		}
		price, err := decimal.NewFromString(item.UnitPriceSnapshot)
		if err != nil {
			return nil, fmt.Errorf("invalid cart record for %s: price of %s: %w", rec.OwnerID, item.ProductID, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("invalid cart record for %s: negative price for %s", rec.OwnerID, item.ProductID)
		}
		cart.Items[item.ProductID] = domain.CartLine{
			ProductID:         item.ProductID,
			Quantity:          item.Quantity,
			UnitPriceSnapshot: price,
			AddedAt:           item.AddedAt,
		}
	}

	return cart, nil
}
