// Package reconcile folds the guest cart and wishlist into a user's collections
// at login.
package reconcile

import (
	cartdomain "storefront/client/internal/cart/domain"
	wishlistdomain "storefront/client/internal/wishlist/domain"
)

// MergeCart returns user with guest folded in. Quantities of matching products
// are summed; products new to the user are appended in guest order. An empty
// user cart adopts the guest cart and an empty guest cart leaves user as is.
// Neither input is modified.
func MergeCart(guest, user []cartdomain.Entry) []cartdomain.Entry {
	if len(user) == 0 {
		return cartdomain.Clone(guest)
	}
	if len(guest) == 0 {
		return cartdomain.Clone(user)
	}
	out := make([]cartdomain.Entry, len(user), len(user)+len(guest))
	copy(out, user)
	index := make(map[string]int, len(out))
	for i, e := range out {
		if _, ok := index[e.ProductID]; !ok {
			index[e.ProductID] = i
		}
	}
	for _, g := range guest {
		if i, ok := index[g.ProductID]; ok {
			out[i].Quantity += g.Quantity
			continue
		}
		index[g.ProductID] = len(out)
		out = append(out, g)
	}
	return out
}

// MergeWishlist returns user with the guest items it lacks appended in guest
// order. Items already in user keep the user's product snapshot.
func MergeWishlist(guest, user []wishlistdomain.Entry) []wishlistdomain.Entry {
	if len(user) == 0 {
		return wishlistdomain.Clone(guest)
	}
	out := wishlistdomain.Clone(user)
	for _, g := range guest {
		if wishlistdomain.Contains(out, g.ProductID) {
			continue
		}
		out = append(out, wishlistdomain.Clone([]wishlistdomain.Entry{g})...)
	}
	return out
}
