package domain

import (
	"errors"
	"fmt"
)

// ErrKind maps a domain error to a transport status.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"     // 400
	KindAuth           ErrKind = "auth"           // 401
	KindForbidden      ErrKind = "forbidden"      // 403
	KindNotFound       ErrKind = "not_found"      // 404
	KindConflict       ErrKind = "conflict"       // 409
	KindGone           ErrKind = "gone"           // 410
	KindRateLimited    ErrKind = "rate_limited"   // 429
	KindInfrastructure ErrKind = "infrastructure" // 502/503
	KindInternal       ErrKind = "internal"       // 500
)

// Error is a structured domain error.
// Code is stable and machine readable; Message is safe to show to the user.
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so sentinel-style checks work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func WithMeta(err *Error, meta map[string]string) *Error {
	err.Meta = meta
	return err
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// KindOf returns the kind of a domain error, or KindInternal for anything else.
func KindOf(err error) ErrKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

const (
	CodeAlreadyActive          = "participant.already_active"
	CodeBlocked                = "participant.blocked"
	CodeAtCapacity             = "event.at_capacity"
	CodeEventEnded             = "event.ended"
	CodeEventNotFound          = "event.not_found"
	CodeNotOrganizer           = "auth.not_organizer"
	CodeNotPendingOrWaitlisted = "participant.not_pending_or_waitlisted"
	CodePaymentNotConfirmed    = "payment.not_confirmed"
	CodePaymentGate            = "payment.gate_closed"
	CodeParticipantNotFound    = "participant.not_found"
	CodeTryAgain               = "participant.try_again"
	CodePaymentProvider        = "payment.provider_unavailable"
	CodeInvalidField           = "request.invalid"
	CodeForbidden              = "auth.forbidden"
)

// ----------------------
// Join
// ----------------------

func ErrAlreadyActive() *Error {
	return New(KindConflict, CodeAlreadyActive, "you already have an active request for this hunt")
}

func ErrBlocked() *Error {
	return New(KindForbidden, CodeBlocked, "the organizer has declined your requests too many times; you can no longer join this hunt")
}

func ErrAtCapacity() *Error {
	return New(KindConflict, CodeAtCapacity, "this hunt is full and has no waitlist")
}

func ErrEventEnded(reason string) *Error {
	return New(KindGone, CodeEventEnded, reason)
}

func ErrEventNotFound() *Error {
	return New(KindNotFound, CodeEventNotFound, "hunt not found")
}

// ----------------------
// Organizer actions
// ----------------------

func ErrNotOrganizer() *Error {
	return New(KindForbidden, CodeNotOrganizer, "only the hunt organizer can do this")
}

func ErrForbidden() *Error {
	return New(KindForbidden, CodeForbidden, "forbidden")
}

func ErrNotPendingOrWaitlisted(current ParticipantStatus) *Error {
	return WithMeta(New(KindConflict, CodeNotPendingOrWaitlisted, "this request is not pending or waitlisted"), map[string]string{
		"status": string(current),
	})
}

func ErrPaymentNotConfirmed() *Error {
	return New(KindConflict, CodePaymentNotConfirmed, "payment has not been confirmed for this participant yet")
}

func ErrParticipantNotFound() *Error {
	return New(KindNotFound, CodeParticipantNotFound, "you have not joined this hunt")
}

// ----------------------
// Payment gate
// ----------------------

// Gate reasons carried in PaymentGateError meta.
const (
	GateReasonAlreadyPaid    = "already_paid"
	GateReasonInFlight       = "payment_in_progress"
	GateReasonBlocked        = "blocked"
	GateReasonNotPayable     = "not_awaiting_payment"
	GateReasonFreeEvent      = "event_is_free"
	GateReasonAtCapacity     = "event_full"
	GateReasonNotParticipant = "not_joined"
)

var gateMessages = map[string]string{
	GateReasonAlreadyPaid:    "you have already paid for this hunt",
	GateReasonInFlight:       "a payment for this hunt is already in progress; finish or cancel it first",
	GateReasonBlocked:        "you can no longer join this hunt",
	GateReasonNotPayable:     "your request is not waiting for payment",
	GateReasonFreeEvent:      "this hunt is free",
	GateReasonAtCapacity:     "this hunt is full right now; try again when a seat frees up",
	GateReasonNotParticipant: "join the hunt before paying",
}

// GateMessage returns the user-facing text for a gate reason.
func GateMessage(reason string) string {
	if m, ok := gateMessages[reason]; ok {
		return m
	}
	return "payment is not possible right now"
}

func PaymentGateError(reason string) *Error {
	return WithMeta(New(KindConflict, CodePaymentGate, GateMessage(reason)), map[string]string{
		"reason": reason,
	})
}

func ErrPaymentProvider(cause error) *Error {
	return Wrap(KindInfrastructure, CodePaymentProvider, "the payment provider could not start a checkout; please try again", cause)
}

// ----------------------
// Concurrency / validation
// ----------------------

// ErrConcurrentUpdate signals a lost race the user can simply retry.
func ErrConcurrentUpdate(cause error) *Error {
	return Wrap(KindConflict, CodeTryAgain, "someone else changed this hunt at the same time; please try again", cause)
}

func ErrInvalidField(field, reason string) *Error {
	return WithMeta(New(KindValidation, CodeInvalidField, "invalid "+field), map[string]string{
		"field":  field,
		"reason": reason,
	})
}

// ErrCacheMiss is returned by cache lookups that have no entry.
var ErrCacheMiss = errors.New("cache miss")
