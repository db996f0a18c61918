package security

import "errors"

var (
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("signature invalid")
)
