package rest

import (
	"errors"
	"net/http"

	"github.com/aurorahunt/hunt-service/internal/domain"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/aurorahunt/hunt-service/internal/transport/rest/response"
)

func statusFor(kind domain.ErrKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindGone:
		return http.StatusGone
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := statusFor(de.Kind)
		if status >= http.StatusInternalServerError {
			logger.WithCtx(r.Context()).Error().Err(err).Str("code", de.Code).Msg("request failed")
		}
		fail(w, r, status, de.Code, de.Message, de.Meta)
		return
	}

	// Do not leak internal details.
	logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
	fail(w, r, http.StatusInternalServerError, "internal", "something went wrong; please try again", nil)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "sign in to continue", nil)
}
