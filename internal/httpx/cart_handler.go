package httpx

import (
	"net/http"

	"github.com/ariefcatur/shopcore/internal/cart"
)

type CartHandler struct {
	Carts *cart.Service
}

type cartAddReq struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type cartUpdateReq struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

type cartRemoveReq struct {
	ProductID string `json:"productId" validate:"required"`
}

func (h *CartHandler) fetch(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Fetch(r.Context(), identity(r).UserID)
	h.respond(w, r, c, err)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req cartAddReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Carts.Add(r.Context(), identity(r).UserID, req.ProductID, req.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req cartUpdateReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Carts.Update(r.Context(), identity(r).UserID, req.ProductID, req.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req cartRemoveReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Carts.Remove(r.Context(), identity(r).UserID, req.ProductID)
	h.respond(w, r, c, err)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Clear(r.Context(), identity(r).UserID)
	h.respond(w, r, c, err)
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, c cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
