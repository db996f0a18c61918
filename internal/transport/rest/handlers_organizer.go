package rest

import (
	"net/http"

	"github.com/aurorahunt/hunt-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// target resolves /hunts/{eventID}/participants/{userID}.
func target(w http.ResponseWriter, r *http.Request) (eventID, userID uuid.UUID, auth AuthContext, ok bool) {
	auth, ok = GetAuth(r.Context())
	if !ok {
		unauthorized(w, r)
		return uuid.Nil, uuid.Nil, AuthContext{}, false
	}
	req := targetRequest{EventID: chi.URLParam(r, "eventID"), UserID: chi.URLParam(r, "userID")}
	if err := validateRequest(req); err != nil {
		handleErr(w, r, err)
		return uuid.Nil, uuid.Nil, AuthContext{}, false
	}
	return uuid.MustParse(req.EventID), uuid.MustParse(req.UserID), auth, true
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	eventID, userID, auth, ok := target(w, r)
	if !ok {
		return
	}
	p, err := h.svc.OrganizerApprove(r.Context(), eventID, auth.UserID, auth.Role, userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toView(p))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	eventID, userID, auth, ok := target(w, r)
	if !ok {
		return
	}
	res, err := h.svc.OrganizerReject(r.Context(), eventID, auth.UserID, auth.Role, userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"participant":     toView(res.Participant),
		"rejection_count": res.RejectionCount,
		"is_blocked":      res.IsBlocked,
		"promoted":        res.Promoted,
	})
}

func (h *Handler) PaymentReceived(w http.ResponseWriter, r *http.Request) {
	eventID, userID, auth, ok := target(w, r)
	if !ok {
		return
	}
	p, err := h.svc.ConfirmPaymentReceived(r.Context(), eventID, auth.UserID, auth.Role, userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toView(p))
}
