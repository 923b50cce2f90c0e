package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/checkout"
	"github.com/ariefcatur/shopcore/internal/guard"
	"github.com/ariefcatur/shopcore/internal/orders"
)

type OrdersHandler struct {
	Orders   *orders.Service
	Checkout *checkout.Service
}

// createOrderReq takes either explicit items or cartRef=true.
type createOrderReq struct {
	SellerID string             `json:"sellerId"`
	Items    []orders.ItemInput `json:"items"`
	CartRef  bool               `json:"cartRef"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	customerID := identity(r).UserID

	var (
		o   orders.Order
		err error
	)
	switch {
	case req.CartRef && len(req.Items) > 0:
		err = apperr.New(apperr.KindValidation, "send either items or cartRef, not both")
	case req.CartRef:
		o, err = h.Checkout.PlaceFromCart(r.Context(), customerID, req.SellerID)
	default:
		o, err = h.Orders.Create(r.Context(), customerID, req.SellerID, req.Items)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID, sellerID, err := guard.ScopeOrderFilter(identity(r), q.Get("customerId"), q.Get("sellerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Orders.List(r.Context(), orders.Filter{CustomerID: customerID, SellerID: sellerID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetFor(r.Context(), identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.CancelBy(r.Context(), identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.FulfillBy(r.Context(), identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
