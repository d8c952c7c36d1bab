package cart

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

// ErrInsufficientStock matches every stock rejection.
var ErrInsufficientStock = errors.New("insufficient stock")

// StockError rejects a quantity change. Max is the largest quantity allowed
// for the product and is set for STOCK_EXCEEDED.
type StockError struct {
	Code      outcome.Code
	ProductID string
	Max       int
}

func (e *StockError) Error() string {
	if e.Code == outcome.CodeOutOfStock {
		return fmt.Sprintf("product %s is out of stock", e.ProductID)
	}
	return fmt.Sprintf("product %s: quantity exceeds stock of %d", e.ProductID, e.Max)
}

// ErrorCode implements outcome.Coder.
func (e *StockError) ErrorCode() outcome.Code { return e.Code }

// Is makes every StockError match ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// RemainingStock returns how many more units of p can go into c.
func RemainingStock(p product.Product, c Cart) int {
	return p.Stock - c.Quantity(p.ID)
}

// CanAdd checks that at least one more unit of p fits into c.
func CanAdd(p product.Product, c Cart) error {
	if RemainingStock(p, c) <= 0 {
		return &StockError{Code: outcome.CodeOutOfStock, ProductID: p.ID}
	}
	return nil
}

// CanIncrement checks that a line of p holding current units may grow by one.
func CanIncrement(p product.Product, current int) error {
	if current+1 > p.Stock {
		return &StockError{Code: outcome.CodeStockExceeded, ProductID: p.ID, Max: p.Stock}
	}
	return nil
}

// CanSetQuantity checks an absolute quantity for p. A non-positive n asks for
// the line to be removed, which is not an error.
func CanSetQuantity(p product.Product, n int) (remove bool, err error) {
	if n <= 0 {
		return true, nil
	}
	if n > p.Stock {
		return false, &StockError{Code: outcome.CodeStockExceeded, ProductID: p.ID, Max: p.Stock}
	}
	return false, nil
}
