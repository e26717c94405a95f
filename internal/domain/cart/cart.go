// Package cart describes a user's pre-checkout basket.
package cart

import (
	"context"
	"time"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// Line is one product entry in a cart. Price is what the shopper saw when
// adding it; checkout always re-reads the catalog price.
type Line struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
	Price     money.Money
	AddedAt   time.Time
}

// Repository is the cart port used at checkout.
type Repository interface {
	GetCart(ctx context.Context, userID string) ([]Line, error)
	// ClearCart removes the given lines from userID's cart and returns how
	// many were removed. A line only matches when product, size, color and
	// quantity are all unchanged, so lines added or edited since the cart was
	// read stay in place.
	ClearCart(ctx context.Context, userID string, lines []Line) (int64, error)
}

// Quantity returns the total number of units across lines.
func Quantity(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
