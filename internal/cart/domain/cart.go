package domain

import "errors"

var (
	// ErrInvalidQuantity is returned when an entry would hold less than one unit.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrEmptyProduct is returned for an entry without a product id.
	ErrEmptyProduct = errors.New("product id is required")
)

// Entry is one cart line. Entries are unique by ProductID within a cart.
type Entry struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Validate checks the entry invariants.
func (e Entry) Validate() error {
	if e.ProductID == "" {
		return ErrEmptyProduct
	}
	if e.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

// Clone returns an independent copy of entries. A nil slice stays nil.
func Clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	return append(make([]Entry, 0, len(entries)), entries...)
}

// Index returns the position of productID in entries, or -1.
func Index(entries []Entry, productID string) int {
	for i, e := range entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}
