package handler

import (
	"net/http"

	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.payments.ListMethods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, methods)
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.payments.Initiate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// paymentCallback receives the buyer's return from a hosted gateway. bKash
// returns with a GET, SSLCommerz posts a form.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	provider := payment.MethodType(chi.URLParam(r, "provider"))

	cb, err := h.payments.ParseCallback(provider, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.payments.ResolveCallback(r.Context(), cb)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

type manualPaymentRequest struct {
	Paid      bool   `json:"paid"`
	Reference string `json:"reference"`
}

func (h *Handler) resolveManualPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req manualPaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.payments.ResolveManual(r.Context(), id, req.Paid, req.Reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}
