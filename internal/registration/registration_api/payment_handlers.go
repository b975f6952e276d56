package registration_api

import (
	"net/http"
	"strconv"
	"time"

	"ms-registration/internal/registration"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetPendingPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.fail(w, r, "GetPayment", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Pending payment", p))
}

// PaymentQR renders the payment instruction as a PNG for banking apps.
func (h *Handler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetPendingPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.fail(w, r, "PaymentQR", err)
		return
	}
	png, err := h.QR.PNG(p.QRPayment)
	if err != nil {
		h.fail(w, r, "PaymentQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReportedAmountMinor *int64    `json:"reported_amount_minor,omitempty"`
		PaidAt              time.Time `json:"paid_at,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, "Verify", err)
		return
	}
	v, err := h.Engine.Verify(r.Context(), chi.URLParam(r, "paymentId"), registration.VerifyInput{
		VerifiedBy:          actor(r),
		ReportedAmountMinor: body.ReportedAmountMinor,
		PaidAt:              body.PaidAt,
	})
	if err != nil {
		h.fail(w, r, "Verify", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Payment verified", v))
}

func (h *Handler) ProcessReceived(w http.ResponseWriter, r *http.Request) {
	v, err := h.Engine.ProcessReceived(r.Context(), chi.URLParam(r, "paymentId"), actor(r))
	if err != nil {
		h.fail(w, r, "ProcessReceived", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Payment processed", v))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, "Reject", err)
		return
	}
	p, err := h.Engine.Reject(r.Context(), chi.URLParam(r, "paymentId"), body.Reason, actor(r))
	if err != nil {
		h.fail(w, r, "Reject", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Payment rejected", p))
}

func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Expire(r.Context(), chi.URLParam(r, "paymentId"), time.Now())
	if err != nil {
		h.fail(w, r, "Expire", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Payment expired", p))
}
