package security

import (
	"time"

	"github.com/google/uuid"
)

// TokenClaims is what the transport needs from an access token.
type TokenClaims struct {
	UserID  uuid.UUID
	Role    string
	Ver     int64
	Exp     time.Time
	Issuer  string
	Subject string
}
