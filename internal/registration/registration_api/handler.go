package registration_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/payments/qr"
	"ms-registration/internal/registration"
	"ms-registration/internal/sse"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the registration engine over HTTP.
type Handler struct {
	Engine    *registration.Engine
	QR        *qr.Generator
	Logger    *logger.Logger
	AdminRole string
	// Changes feeds the capacity stream; nil disables the endpoint.
	Changes *sse.CapacityEmitter
}

func NewHandler(engine *registration.Engine, qrGen *qr.Generator, log *logger.Logger, adminRole string, changes *sse.CapacityEmitter) *Handler {
	return &Handler{Engine: engine, QR: qrGen, Logger: log, AdminRole: adminRole, Changes: changes}
}

// RegisterRoutes registers the registration routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events/{eventId}", func(r chi.Router) {
		r.Post("/registrations", h.Register)
		r.Get("/capacity", h.Capacity)
		if h.Changes != nil {
			r.Get("/capacity/stream", h.StreamCapacity)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.AdminRole))
			r.Post("/admin-registrations", h.AdminRegister)
			r.Get("/waiting-list", h.ListWaitingList)
			r.Get("/waiting-list/unpromotable", h.ListUnpromotable)
			r.Post("/waiting-list/promote", h.PromoteNext)
		})
	})

	r.Route("/payments/{paymentId}", func(r chi.Router) {
		r.Get("/", h.GetPayment)
		r.Get("/qr.png", h.PaymentQR)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.AdminRole))
			r.Post("/verify", h.Verify)
			r.Post("/process", h.ProcessReceived)
			r.Post("/reject", h.Reject)
			r.Post("/expire", h.Expire)
		})
	})

	r.Route("/registrations/{registrationId}", func(r chi.Router) {
		r.Get("/", h.GetRegistration)
		r.Post("/cancel", h.Cancel)
		r.With(auth.RequireRole(h.AdminRole)).Post("/attendance", h.MarkAttendance)
	})

	r.Delete("/waiting-list/{entryId}", h.Withdraw)
}

// ---------------- HELPERS ----------------

// sendJSONResponse is a helper function to send JSON responses
func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registration.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registration.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, registration.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrInvalidState),
		errors.Is(err, registration.ErrCapacityExceeded),
		errors.Is(err, registration.ErrDuplicateRegistration):
		return http.StatusConflict
	case errors.Is(err, registration.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		msg = "internal error"
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	sendJSONResponse(w, status, utils.ErrorResponse(op+" failed", msg))
}

func decode(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", registration.ErrInvalidRequest, err)
	}
	return nil
}

// actor is who the audit trail records for the request.
func actor(r *http.Request) string {
	if uid := auth.UserID(r.Context()); uid != "" {
		return uid
	}
	return "guest"
}

func (h *Handler) isAdmin(r *http.Request) bool {
	id, ok := auth.IdentityFrom(r.Context())
	return ok && id.HasRole(h.AdminRole)
}

// ---------------- REGISTRATION ----------------

type registerBody struct {
	Guest           *models.Guest   `json:"guest,omitempty"`
	Friends         []models.Friend `json:"friends,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PaymentTTLHours *float64        `json:"payment_ttl_hours,omitempty"`
	Force           bool            `json:"force,omitempty"`
}

func (b *registerBody) request(r *http.Request) registration.Request {
	req := registration.Request{
		EventID:       chi.URLParam(r, "eventId"),
		UserID:        auth.UserID(r.Context()),
		Guest:         b.Guest,
		Friends:       b.Friends,
		PaymentMethod: b.PaymentMethod,
		Actor:         auth.UserID(r.Context()),
	}
	if b.PaymentTTLHours != nil {
		req.PaymentTTL = time.Duration(*b.PaymentTTLHours * float64(time.Hour))
		if req.PaymentTTL == 0 {
			req.PaymentTTL = -1
		}
	}
	return req
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, "Register", err)
		return
	}
	out, err := h.Engine.Register(r.Context(), body.request(r))
	if err != nil {
		h.fail(w, r, "Register", err)
		return
	}

	switch out.Result {
	case registration.ResultAdmitted:
		sendJSONResponse(w, http.StatusCreated, utils.SuccessResponse("Registration admitted, awaiting payment", out))
	case registration.ResultWaitlisted:
		sendJSONResponse(w, http.StatusAccepted, utils.SuccessResponse("Event is full, added to waiting list", out))
	default:
		sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Already registered for this event", out))
	}
}

func (h *Handler) AdminRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		registerBody
		UserID string `json:"user_id,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, "AdminRegister", err)
		return
	}
	req := body.request(r)
	req.UserID = body.UserID
	regs, err := h.Engine.AdminRegister(r.Context(), req, registration.AdminOptions{Actor: actor(r), Force: body.Force})
	if err != nil {
		h.fail(w, r, "AdminRegister", err)
		return
	}
	sendJSONResponse(w, http.StatusCreated, utils.SuccessResponse("Registration created", regs))
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Engine.GetRegistration(r.Context(), chi.URLParam(r, "registrationId"))
	if err != nil {
		h.fail(w, r, "GetRegistration", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Registration", reg))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	if !h.isAdmin(r) {
		reg, err := h.Engine.GetRegistration(r.Context(), id)
		if err != nil {
			h.fail(w, r, "Cancel", err)
			return
		}
		if uid := auth.UserID(r.Context()); uid == "" || uid != reg.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	reg, err := h.Engine.Cancel(r.Context(), id, actor(r))
	if err != nil {
		h.fail(w, r, "Cancel", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Registration cancelled", reg))
}

func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Attended bool `json:"attended"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, "MarkAttendance", err)
		return
	}
	reg, err := h.Engine.MarkAttendance(r.Context(), chi.URLParam(r, "registrationId"), body.Attended, actor(r))
	if err != nil {
		h.fail(w, r, "MarkAttendance", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Attendance recorded", reg))
}

func (h *Handler) Capacity(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Capacity(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, "Capacity", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Capacity", report))
}
