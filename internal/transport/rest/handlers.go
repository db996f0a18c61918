package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/security"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/aurorahunt/hunt-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Orchestrator is the set of participation triggers and reads the API exposes.
type Orchestrator interface {
	Join(ctx context.Context, eventID, userID uuid.UUID) (service.JoinResult, error)
	Cancel(ctx context.Context, eventID, userID uuid.UUID) (service.CancelResult, error)
	GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error)

	OrganizerApprove(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (domain.Participant, error)
	OrganizerReject(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (service.RejectResult, error)
	ConfirmPaymentReceived(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (domain.Participant, error)

	CanProcessPayment(ctx context.Context, eventID, userID uuid.UUID) (service.PaymentEligibility, error)
	InitiatePayment(ctx context.Context, eventID, userID uuid.UUID) (service.Checkout, error)
	MarkPaid(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error)
	ApplyPaymentEvent(ctx context.Context, ev service.PaymentEvent) (domain.Participant, error)

	ListMyHunts(ctx context.Context, userID uuid.UUID, statuses []domain.ParticipantStatus, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error)
	ListParticipants(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error)
	ListWaitlist(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error)
	GetStats(ctx context.Context, eventID, requesterID uuid.UUID, role string) (domain.EventStats, error)
}

type Handler struct {
	svc     Orchestrator
	webhook security.PayloadVerifier
}

func NewHandler(svc Orchestrator, webhook security.PayloadVerifier) *Handler {
	return &Handler{svc: svc, webhook: webhook}
}

func eventParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		handleErr(w, r, domain.ErrInvalidField("event_id", "must be a valid uuid"))
		return uuid.Nil, false
	}
	return eventID, true
}

// eventAndAuth resolves the hunt from the path and the caller from the token.
func eventAndAuth(w http.ResponseWriter, r *http.Request) (uuid.UUID, AuthContext, bool) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		unauthorized(w, r)
		return uuid.Nil, AuthContext{}, false
	}
	eventID, ok := eventParam(w, r)
	if !ok {
		return uuid.Nil, AuthContext{}, false
	}
	return eventID, auth, true
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Join(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toJoinView(res))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Cancel(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"participant": toView(res.Participant),
		"promoted":    res.Promoted,
	})
}

func (h *Handler) GetMyParticipation(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetParticipation(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toView(p))
}

func (h *Handler) MyHunts(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		handleErr(w, r, domain.ErrInvalidField("cursor", "is malformed"))
		return
	}

	// status=confirmed,pending,...
	var q myHuntsQuery
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		for _, p := range strings.Split(s, ",") {
			if v := strings.ToLower(strings.TrimSpace(p)); v != "" {
				q.Statuses = append(q.Statuses, v)
			}
		}
	}
	if err := validateRequest(q); err != nil {
		handleErr(w, r, err)
		return
	}
	statuses := make([]domain.ParticipantStatus, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses = append(statuses, domain.ParticipantStatus(s))
	}

	items, next, err := h.svc.ListMyHunts(r.Context(), auth.UserID, statuses, parseLimit(r.URL.Query().Get("limit")), cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, response.Page{Items: toViews(items), NextCursor: encodeCursor(next)})
}

type listFunc func(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		handleErr(w, r, domain.ErrInvalidField("cursor", "is malformed"))
		return
	}
	items, next, err := fn(r.Context(), eventID, auth.UserID, auth.Role, parseLimit(r.URL.Query().Get("limit")), cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, response.Page{Items: toViews(items), NextCursor: encodeCursor(next)})
}

func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListParticipants)
}

func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListWaitlist)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	s, err := h.svc.GetStats(r.Context(), eventID, auth.UserID, auth.Role)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, statsView{
		EventID:         eventID,
		Capacity:        s.Capacity,
		ConfirmedCount:  s.ConfirmedCount,
		PendingCount:    s.PendingCount,
		WaitlistedCount: s.WaitlistedCount,
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.Data(w, http.StatusOK, map[string]string{"status": "ok"})
}
