package security

type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (TokenClaims, error)
}

// PayloadVerifier authenticates provider callbacks.
type PayloadVerifier interface {
	Verify(body []byte, signature string) error
}
