package httpx

import (
	"net/http"

	"github.com/target/storefront-api/internal/domain/cart"
	"github.com/target/storefront-api/internal/domain/catalog"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/service"
)

// CartHandlers serves the visitor's cart. The cart is not identity scoped, so
// these endpoints are not guarded.
type CartHandlers struct{}

type addItemResponse struct {
	Item  cart.LineItem `json:"item"`
	Count int           `json:"count"`
}

// List handles GET /api/cart.
func (h *CartHandlers) List(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, v.Cart.Summary(r.Context()))
}

// Count handles GET /api/cart/count.
func (h *CartHandlers) Count(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": v.Cart.CurrentCount(r.Context())})
}

// AddItem handles POST /api/cart/items.
func (h *CartHandlers) AddItem(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	var form service.AddToCartForm
	if !DecodeJSON(w, r, &form) {
		return
	}

	product, found := catalog.Find(form.ProductID)
	if !found {
		WriteAppError(w, apperrors.ValidationField("productId", service.MsgUnknownProduct))
		return
	}
	item, err := v.Cart.AddItem(r.Context(), product, form.Color, form.Size)
	if err != nil {
		WriteAppError(w, asAppError(err))
		return
	}
	WriteJSON(w, http.StatusCreated, addItemResponse{Item: item, Count: v.Cart.CurrentCount(r.Context())})
}

// RemoveItem handles DELETE /api/cart/items/{cartId}. The segment is path-escaped by
// the client, so a key like "1-Black%2DM-L" arrives as "1-Black%252DM-L".
func (h *CartHandlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	removed, err := v.Cart.RemoveItem(r.Context(), r.PathValue("cartId"))
	if err != nil {
		WriteAppError(w, asAppError(err))
		return
	}
	if !removed {
		WriteAppError(w, apperrors.NotFound("cart item not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// asAppError treats uncategorised failures (cache writes) as internal errors.
func asAppError(err error) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "cart update failed")
}
