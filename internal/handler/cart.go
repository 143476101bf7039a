package handler

import (
	"net/http"

	"github.com/samber/lo"

	"github.com/vendora/storefront/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type cartResponse struct {
	ID    string             `json:"id"`
	Items []cartItemResponse `json:"items"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	return cartResponse{
		ID: c.ID,
		Items: lo.Map(c.Items, func(item cart.Item, _ int) cartItemResponse {
			return cartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price.InexactFloat64(),
			}
		}),
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	c, err := h.carts.GetByUser(r.Context(), caller.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	// Snapshot the current price into the cart line. The value is display
	// only; checkout reprices against the live catalog.
	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !p.Sellable() {
		writeError(w, http.StatusUnprocessableEntity, "product is not available")
		return
	}

	err = h.carts.AddItem(r.Context(), caller.UserID, cart.Item{
		ProductID: p.ID,
		Quantity:  req.Quantity,
		Price:     p.Price,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	c, err := h.carts.GetByUser(r.Context(), caller.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := h.carts.RemoveItem(r.Context(), caller.UserID, r.PathValue("productID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
