package reconcile

import (
	"encoding/json"
	"reflect"
	"testing"

	cartdomain "storefront/client/internal/cart/domain"
	wishlistdomain "storefront/client/internal/wishlist/domain"
)

func TestMergeCart(t *testing.T) {
	testCases := []struct {
		name  string
		guest []cartdomain.Entry
		user  []cartdomain.Entry
		want  []cartdomain.Entry
	}{
		{
			name:  "sums matching products and appends new ones",
			guest: []cartdomain.Entry{{ProductID: "A", Quantity: 2}},
			user:  []cartdomain.Entry{{ProductID: "A", Quantity: 1}, {ProductID: "B", Quantity: 3}},
			want:  []cartdomain.Entry{{ProductID: "A", Quantity: 3}, {ProductID: "B", Quantity: 3}},
		},
		{
			name:  "new guest products follow user entries in guest order",
			guest: []cartdomain.Entry{{ProductID: "C", Quantity: 1}, {ProductID: "A", Quantity: 1}, {ProductID: "D", Quantity: 2}},
			user:  []cartdomain.Entry{{ProductID: "A", Quantity: 1}},
			want:  []cartdomain.Entry{{ProductID: "A", Quantity: 2}, {ProductID: "C", Quantity: 1}, {ProductID: "D", Quantity: 2}},
		},
		{
			name:  "empty guest leaves user unchanged",
			guest: nil,
			user:  []cartdomain.Entry{{ProductID: "A", Quantity: 1}},
			want:  []cartdomain.Entry{{ProductID: "A", Quantity: 1}},
		},
		{
			name:  "empty user adopts guest",
			guest: []cartdomain.Entry{{ProductID: "A", Quantity: 2}},
			user:  []cartdomain.Entry{},
			want:  []cartdomain.Entry{{ProductID: "A", Quantity: 2}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeCart(tc.guest, tc.user)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("MergeCart = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeCart_DoesNotModifyInputs(t *testing.T) {
	guest := []cartdomain.Entry{{ProductID: "A", Quantity: 2}}
	user := []cartdomain.Entry{{ProductID: "A", Quantity: 1}}

	_ = MergeCart(guest, user)

	if user[0].Quantity != 1 || guest[0].Quantity != 2 {
		t.Errorf("inputs modified: guest=%v user=%v", guest, user)
	}
}

func TestMergeWishlist(t *testing.T) {
	snapA := json.RawMessage(`{"name":"lamp"}`)
	guest := []wishlistdomain.Entry{{ProductID: "A", Product: json.RawMessage(`{"name":"old lamp"}`)}, {ProductID: "C"}}
	user := []wishlistdomain.Entry{{ProductID: "A", Product: snapA}, {ProductID: "B"}}

	got := MergeWishlist(guest, user)

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ProductID
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if string(got[0].Product) != string(snapA) {
		t.Errorf("duplicate should keep the user's snapshot, got %s", got[0].Product)
	}

	if got := MergeWishlist(nil, user); len(got) != 2 {
		t.Errorf("empty guest: len = %d, want 2", len(got))
	}
	if got := MergeWishlist(guest, nil); len(got) != 2 || got[0].ProductID != "A" {
		t.Errorf("empty user should adopt guest, got %v", got)
	}
}
