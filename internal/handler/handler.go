// Package handler implements the storefront HTTP API on net/http.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/vendora/storefront/internal/domain/cart"
	"github.com/vendora/storefront/internal/domain/coupon"
	"github.com/vendora/storefront/internal/domain/order"
	"github.com/vendora/storefront/internal/domain/product"
)

// maxBodyBytes caps request bodies; the API only ever receives small JSON
// documents.
const maxBodyBytes = 1 << 20

// Handler serves the storefront API, delegating business logic to the domain
// services.
type Handler struct {
	products  product.Repository
	carts     cart.Store
	orders    order.Repository
	checkout  *order.CheckoutService
	lifecycle *order.LifecycleService
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	carts cart.Store,
	orders order.Repository,
	checkout *order.CheckoutService,
	lifecycle *order.LifecycleService,
) *Handler {
	return &Handler{
		products:  products,
		carts:     carts,
		orders:    orders,
		checkout:  checkout,
		lifecycle: lifecycle,
	}
}

// Register attaches all API routes to mux. Method-qualified patterns route
// per-verb; unmatched methods get 405 from the mux itself.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.removeCartItem)

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.setOrderStatus)
	mux.HandleFunc("PUT /api/orders/{id}/items", h.editOrderItems)
}

// errorResponse is the JSON body for every non-2xx API response.
type errorResponse struct {
	Code     int                 `json:"code"`
	Message  string              `json:"message"`
	Problems []order.ItemProblem `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps domain errors onto HTTP statuses. Unexpected errors
// are logged and hidden behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrOrderDelivered):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrReservationConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrTransitionNotAllowed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	default:
		var inel *coupon.IneligibleError
		if errors.As(err, &inel) {
			writeError(w, http.StatusUnprocessableEntity, inel.Error())
			return
		}

		var resolveErr *order.ResolveError
		if errors.As(err, &resolveErr) {
			status := http.StatusUnprocessableEntity
			if resolveErr.StockOnly() {
				status = http.StatusConflict
			}
			writeJSON(w, status, errorResponse{
				Code:     status,
				Message:  "cannot resolve items",
				Problems: resolveErr.Problems,
			})
			return
		}

		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
