package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Resolver turns cart lines into order items priced from the live catalog.
type Resolver struct {
	products product.Repository
}

// NewResolver creates a Resolver reading from products.
func NewResolver(products product.Repository) *Resolver {
	return &Resolver{products: products}
}

// Resolve re-reads every product in lines and snapshots it. It fails on the
// first line whose product is missing, inactive or short on stock, and then
// returns no items at all.
func (r *Resolver) Resolve(ctx context.Context, lines []cart.Line) ([]Item, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("cart", "cart is empty")
	}

	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, apperr.Validation("quantity", "must be greater than 0 for product "+line.ProductID)
		}

		p, err := r.products.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, apperr.NotFound("product", line.ProductID)
			}
			return nil, errors.Wrapf(err, "get product %s", line.ProductID)
		}
		if !p.IsActive {
			return nil, apperr.Conflict("product", p.ID, "no longer available")
		}
		if p.Stock < line.Quantity {
			return nil, apperr.Conflict("product", p.ID, "insufficient stock")
		}

		items = append(items, Item{
			ProductID: p.ID,
			Snapshot: Snapshot{
				Name:  p.Name,
				Price: p.Price,
				Image: p.Image.Thumbnail,
			},
			Quantity:   line.Quantity,
			Size:       line.Size,
			Color:      line.Color,
			UnitPrice:  p.Price,
			TotalPrice: p.Price.Mul(line.Quantity),
		})
	}
	return items, nil
}
