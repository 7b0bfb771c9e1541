package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AnonymousOwnerPrefix marks owner ids that belong to an anonymous session
// rather than a registered user.
const AnonymousOwnerPrefix = "anon:"

// AnonymousOwner returns the owner id for an anonymous session.
func AnonymousOwner(sessionID string) string {
	return AnonymousOwnerPrefix + sessionID
}

// IsAnonymousOwner reports whether the owner id belongs to an anonymous session.
func IsAnonymousOwner(ownerID string) bool {
	return strings.HasPrefix(ownerID, AnonymousOwnerPrefix)
}

// Cart is the per-owner shopping cart aggregate.
type Cart struct {
	OwnerID   string              `json:"owner_id"`
	Items     map[string]CartLine `json:"items"`
	Version   int64               `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// CartLine is one product entry in a cart.
type CartLine struct {
	ProductID         string          `json:"product_id"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price_snapshot"`
	AddedAt           time.Time       `json:"added_at"`
}

// Totals are derived from a cart snapshot and never stored.
type Totals struct {
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Snapshot pairs a cart with its derived totals. It is the read model handed
// to the checkout collaborator, which re-validates live prices before charging.
type Snapshot struct {
	Cart   *Cart  `json:"cart"`
	Totals Totals `json:"totals"`
}

// NewCart returns an empty, never-stored cart for the owner.
func NewCart(ownerID string) *Cart {
	return &Cart{
		OwnerID: ownerID,
		Items:   make(map[string]CartLine),
	}
}

// ComputeTotals sums quantity and quantity × unit price snapshot across lines.
func ComputeTotals(c *Cart) Totals {
	totals := Totals{Subtotal: decimal.Zero}
	if c == nil {
		return totals
	}
	for _, line := range c.Items {
		totals.ItemCount += line.Quantity
		totals.Subtotal = totals.Subtotal.Add(line.UnitPriceSnapshot.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return totals
}

// NewSnapshot builds the read model for a cart.
func NewSnapshot(c *Cart) Snapshot {
	return Snapshot{Cart: c, Totals: ComputeTotals(c)}
}

// Line returns the line for a product and whether it exists.
func (c *Cart) Line(productID string) (CartLine, bool) {
	line, ok := c.Items[productID]
	return line, ok
}

// SetLine stores the line, or removes it when its quantity is not positive.
// A cart never holds a line with quantity <= 0.
func (c *Cart) SetLine(line CartLine) {
	if c.Items == nil {
		c.Items = make(map[string]CartLine)
	}
	if line.Quantity <= 0 {
		delete(c.Items, line.ProductID)
		return
	}
	c.Items[line.ProductID] = line
}

// RemoveLine deletes the line for a product. Absence is not an error.
func (c *Cart) RemoveLine(productID string) {
	delete(c.Items, productID)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = make(map[string]CartLine)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// SortedLines returns the lines ordered by the time they were first added,
// breaking ties by product id.
func (c *Cart) SortedLines() []CartLine {
	lines := make([]CartLine, 0, len(c.Items))
	for _, line := range c.Items {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines
}

// Clone returns a deep copy so that a failed mutation never leaks into the
// caller's view of the cart.
func (c *Cart) Clone() *Cart {
	cpy := *c
	cpy.Items = make(map[string]CartLine, len(c.Items))
	for k, v := range c.Items {
		cpy.Items[k] = v
	}
	return &cpy
}
