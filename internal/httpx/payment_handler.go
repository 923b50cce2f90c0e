package httpx

import (
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/payment"
)

type PaymentHandler struct {
	Payments  *payment.Orchestrator
	Outcomes  payment.OutcomeSink
	Secret    string
	Tolerance time.Duration
}

type createSessionReq struct {
	PackageID string `json:"packageId"`
	OrderID   string `json:"orderId"`
	CartRef   bool   `json:"cartRef"`
	SellerID  string `json:"sellerId"`
	OriginURL string `json:"originUrl"`
}

func (h *PaymentHandler) packages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Payments.ListPackages())
}

func (h *PaymentHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	origin := req.OriginURL
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	res, err := h.Payments.CreateSession(r.Context(), payment.CreateInput{
		UserID:         identity(r).UserID,
		PackageID:      req.PackageID,
		OrderID:        req.OrderID,
		FromCart:       req.CartRef,
		SellerID:       req.SellerID,
		OriginURL:      origin,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// webhook acknowledges verified events once the sink accepted them; a
// non-2xx makes the provider redeliver.
func (h *PaymentHandler) webhook(w http.ResponseWriter, r *http.Request) {
	log := logx.FromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, "unreadable body", err))
		return
	}
	tolerance := h.Tolerance
	if tolerance == 0 {
		tolerance = payment.DefaultWebhookTolerance
	}
	out, ok, err := payment.ParseWebhook(body, r.Header.Get("Stripe-Signature"), h.Secret, tolerance)
	if err != nil {
		log.Warn("webhook rejected", "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: apperr.KindOf(err), Message: apperr.PublicMessage(err)})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err := h.Outcomes.Submit(r.Context(), out); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			log.Warn("webhook for unknown session", "session_id", out.SessionID)
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		writeError(w, r, err)
		return
	}
	log.Info("webhook accepted", "event_id", out.EventID, "session_id", out.SessionID, "status", out.Status)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
