package handler

import (
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vendora/storefront/internal/domain/order"
)

type orderItemInput struct {
	ProductID string   `json:"productId,omitempty"`
	Name      string   `json:"name,omitempty"`
	SKU       string   `json:"sku,omitempty"`
	Quantity  int      `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
}

type placeOrderRequest struct {
	FromCart        bool             `json:"fromCart,omitempty"`
	Items           []orderItemInput `json:"items,omitempty"`
	CouponCode      string           `json:"couponCode,omitempty"`
	ShippingAddress addressDTO       `json:"shippingAddress"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
}

type addressDTO struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type setStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

type editItemsRequest struct {
	Items []editItemInput `json:"items"`
}

type editItemInput struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type couponResponse struct {
	Code     string  `json:"code"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
	Discount float64 `json:"discount"`
}

type historyEntryResponse struct {
	Status string    `json:"status"`
	Note   string    `json:"note"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"userId"`
	Items           []orderItemResponse    `json:"items"`
	Subtotal        float64                `json:"subtotal"`
	Discount        float64                `json:"discount"`
	Total           float64                `json:"total"`
	Coupon          *couponResponse        `json:"coupon,omitempty"`
	FreeShipping    bool                   `json:"freeShipping"`
	Status          string                 `json:"status"`
	History         []historyEntryResponse `json:"history,omitempty"`
	ShippingAddress addressDTO             `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:     o.ID,
		UserID: o.UserID,
		Items: lo.Map(o.Items, func(item order.Item, _ int) orderItemResponse {
			return orderItemResponse{
				ProductID: item.ProductID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.InexactFloat64(),
			}
		}),
		Subtotal:     o.Subtotal.InexactFloat64(),
		Discount:     o.Discount.InexactFloat64(),
		Total:        o.Total.InexactFloat64(),
		FreeShipping: o.FreeShipping,
		Status:       string(o.Status),
		History: lo.Map(o.History, func(e order.HistoryEntry, _ int) historyEntryResponse {
			return historyEntryResponse{
				Status: string(e.Status),
				Note:   e.Note,
				Actor:  e.Actor,
				At:     e.At,
			}
		}),
		ShippingAddress: toAddressDTO(o.ShippingAddress),
		PaymentMethod:   o.PaymentMethod,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.Coupon != nil {
		resp.Coupon = &couponResponse{
			Code:     o.Coupon.Code,
			Kind:     string(o.Coupon.Kind),
			Value:    o.Coupon.Value.InexactFloat64(),
			Discount: o.Coupon.Discount.InexactFloat64(),
		}
	}
	return resp
}

func toAddressDTO(a order.Address) addressDTO {
	return addressDTO{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func toAddress(a addressDTO) order.Address {
	return order.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]order.ItemInput, len(req.Items))
	for i, item := range req.Items {
		input := order.ItemInput{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
		}
		if item.Price != nil {
			expected := decimal.NewFromFloat(*item.Price)
			input.ExpectedPrice = &expected
		}
		items[i] = input
	}

	o, err := h.checkout.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          caller.UserID,
		FromCart:        req.FromCart,
		Items:           items,
		CouponCode:      req.CouponCode,
		ShippingAddress: toAddress(req.ShippingAddress),
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	next, err := order.ToStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := req.Actor
	if actor == "" {
		if caller, ok := CallerFromContext(r.Context()); ok {
			actor = caller.Name
		}
	}

	o, err := h.lifecycle.SetStatus(r.Context(), r.PathValue("id"), next, req.Note, actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) editOrderItems(w http.ResponseWriter, r *http.Request) {
	var req editItemsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := lo.Map(req.Items, func(item editItemInput, _ int) order.Item {
		return order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: decimal.NewFromFloat(item.UnitPrice),
		}
	})

	o, err := h.lifecycle.EditItems(r.Context(), r.PathValue("id"), items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
