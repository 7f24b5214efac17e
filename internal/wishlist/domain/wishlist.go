package domain

import "encoding/json"

// Entry is one wishlist item. Product is the catalog snapshot taken when the
// item was saved; the client never interprets it.
type Entry struct {
	ProductID string          `json:"productId"`
	Product   json.RawMessage `json:"product,omitempty"`
}

// Clone returns an independent copy of entries. A nil slice stays nil.
func Clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{ProductID: e.ProductID}
		if e.Product != nil {
			out[i].Product = append(json.RawMessage(nil), e.Product...)
		}
	}
	return out
}

// Contains reports whether productID is in entries.
func Contains(entries []Entry, productID string) bool {
	for _, e := range entries {
		if e.ProductID == productID {
			return true
		}
	}
	return false
}
