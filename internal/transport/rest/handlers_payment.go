package rest

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/aurorahunt/hunt-service/internal/transport/rest/response"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

const (
	signatureHeader = "X-Signature"
	maxWebhookBody  = 64 << 10
)

func (h *Handler) PaymentEligibility(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	el, err := h.svc.CanProcessPayment(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"allowed": el.Allowed,
		"reason":  el.Reason,
		"message": el.Message,
	})
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	co, err := h.svc.InitiatePayment(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, map[string]any{
		"participant_id": co.ParticipantID,
		"session_id":     co.SessionID,
		"checkout_url":   co.URL,
		"expires_at":     co.ExpiresAt,
	})
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	eventID, auth, ok := eventAndAuth(w, r)
	if !ok {
		return
	}
	p, err := h.svc.MarkPaid(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toView(p))
}

// PaymentWebhook applies a signed provider callback. Redelivered ids are acknowledged
// without changing anything.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		handleErr(w, r, domain.ErrInvalidField("body", "could not be read"))
		return
	}
	if len(body) > maxWebhookBody {
		handleErr(w, r, domain.ErrInvalidField("body", "is too large"))
		return
	}
	if h.webhook == nil || h.webhook.Verify(body, r.Header.Get(signatureHeader)) != nil {
		fail(w, r, http.StatusUnauthorized, "webhook.signature_invalid", "webhook signature is missing or invalid", nil)
		return
	}

	var req webhookRequest
	if err := render.DecodeJSON(bytes.NewReader(body), &req); err != nil {
		handleErr(w, r, domain.ErrInvalidField("body", "must be valid json"))
		return
	}
	if err := validateRequest(req); err != nil {
		handleErr(w, r, err)
		return
	}

	p, err := h.svc.ApplyPaymentEvent(r.Context(), service.PaymentEvent{
		ID:            req.ID,
		Type:          service.PaymentEventType(req.Type),
		ParticipantID: uuid.MustParse(req.ParticipantID),
		SessionID:     req.SessionID,
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) && de.Kind == domain.KindNotFound {
			// the provider retries on non-2xx; a participant we never had will not appear later
			logger.WithCtx(r.Context()).Warn().Str("participant_id", req.ParticipantID).Str("webhook_id", req.ID).Msg("payment webhook for unknown participant ignored")
			response.Data(w, http.StatusAccepted, map[string]any{"ignored": true})
			return
		}
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"participant_id": p.ID,
		"status":         p.Status,
		"payment_status": p.PaymentStatus,
	})
}
