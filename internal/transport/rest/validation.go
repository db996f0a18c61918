package rest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// webhookRequest is the payment provider callback body.
type webhookRequest struct {
	ID            string `json:"id" validate:"required,max=255"`
	Type          string `json:"type" validate:"required,oneof=success failure expired cancelled"`
	ParticipantID string `json:"participant_id" validate:"required,uuid"`
	SessionID     string `json:"session_id" validate:"omitempty,max=255"`
}

// targetRequest addresses one participant of a hunt from path parameters.
type targetRequest struct {
	EventID string `validate:"required,uuid"`
	UserID  string `validate:"required,uuid"`
}

type myHuntsQuery struct {
	Statuses []string `validate:"dive,oneof=pending confirmed waitlisted cancelled"`
}

// validateRequest maps validator output onto the first offending field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return domain.ErrInvalidField("body", err.Error())
	}
	fe := ves[0]
	return domain.ErrInvalidField(fieldName(fe), formatFieldError(fe))
}

func fieldName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "EventID":
		return "event_id"
	case "UserID":
		return "user_id"
	case "ParticipantID":
		return "participant_id"
	case "SessionID":
		return "session_id"
	}
	name := strings.ToLower(fe.Field())
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	return name
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid uuid"
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
