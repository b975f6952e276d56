package registration_api

import (
	"net/http"

	"ms-registration/internal/auth"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListWaitingList(w http.ResponseWriter, r *http.Request) {
	queue, err := h.Engine.ListWaitingList(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, "ListWaitingList", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Waiting list", queue))
}

// ListUnpromotable lists entries whose group is larger than the event.
func (h *Handler) ListUnpromotable(w http.ResponseWriter, r *http.Request) {
	dead, err := h.Engine.ListUnpromotable(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, "ListUnpromotable", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Entries that cannot be promoted", dead))
}

func (h *Handler) PromoteNext(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.PromoteNext(r.Context(), chi.URLParam(r, "eventId"), actor(r))
	if err != nil {
		h.fail(w, r, "PromoteNext", err)
		return
	}
	if p == nil {
		sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("No waiting list entry fits the free capacity", nil))
		return
	}
	sendJSONResponse(w, http.StatusCreated, utils.SuccessResponse("Waiting list entry promoted", p))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryId")
	if !h.isAdmin(r) {
		entry, err := h.Engine.GetWaitingListEntry(r.Context(), id)
		if err != nil {
			h.fail(w, r, "Withdraw", err)
			return
		}
		if uid := auth.UserID(r.Context()); uid == "" || uid != entry.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if err := h.Engine.Withdraw(r.Context(), id, actor(r)); err != nil {
		h.fail(w, r, "Withdraw", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
