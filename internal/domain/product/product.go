package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by ReserveStock when the product is
	// inactive or has fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    money.Money
	Category string
	Image    Image
	IsActive bool
	Stock    int
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Available reports whether qty units can be sold right now.
func (p *Product) Available(qty int) bool {
	return p.IsActive && p.Stock >= qty
}

// Repository is the catalog port used at checkout.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// ReserveStock decrements stock by qty only if the product is active and
	// at least qty units remain.
	ReserveStock(ctx context.Context, id string, qty int) error
}
