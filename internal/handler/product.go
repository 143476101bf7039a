package handler

import (
	"net/http"

	"github.com/samber/lo"

	"github.com/vendora/storefront/internal/domain/product"
)

type productResponse struct {
	ID       string  `json:"id"`
	SellerID string  `json:"sellerId"`
	Name     string  `json:"name"`
	SKU      string  `json:"sku,omitempty"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Status   string  `json:"status"`
	Category string  `json:"category,omitempty"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		SellerID: p.SellerID,
		Name:     p.Name,
		SKU:      p.SKU,
		Price:    p.Price.InexactFloat64(),
		Stock:    p.Stock,
		Status:   string(p.Status),
		Category: p.Category,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(products, func(p product.Product, _ int) productResponse {
		return toProductResponse(p)
	}))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(*p))
}
