package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/aurorahunt/hunt-service/internal/security"
	"github.com/go-chi/httprate"
)

func AuthMiddleware(verifier security.AccessTokenVerifier) func(next http.Handler) http.Handler {
	if verifier == nil {
		panic("AuthMiddleware: nil verifier")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := strings.TrimSpace(r.Header.Get("Authorization"))
			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, r)
				return
			}

			raw := strings.TrimSpace(parts[1])
			if raw == "" {
				unauthorized(w, r)
				return
			}

			// expired and invalid both map to 401
			claims, err := verifier.VerifyAccessToken(raw)
			if err != nil {
				unauthorized(w, r)
				return
			}

			ctx := withAuth(r.Context(), AuthContext{
				UserID: claims.UserID,
				Role:   strings.TrimSpace(claims.Role),
				Ver:    claims.Ver,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// IPRateLimit uses the shared redis window when a cache is wired and falls back
// to an in-process httprate limiter otherwise.
func IPRateLimit(cache domain.CacheRepository, rl RateLimit) func(next http.Handler) http.Handler {
	if cache == nil {
		return httprate.Limit(rl.Limit, rl.Window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(tooManyRequests),
		)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := cache.AllowRequest(r.Context(), clientIP(r), rl.Limit, rl.Window)
			if err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
			}
			if !allowed {
				tooManyRequests(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PerUserRateLimit keys on the authenticated user; it must run after AuthMiddleware.
func PerUserRateLimit(limit int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if a, ok := GetAuth(r.Context()); ok {
				return "user:" + a.UserID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	fail(w, r, http.StatusTooManyRequests, "request.rate_limited", "too many requests; slow down and try again shortly", nil)
}

// clientIP keeps it simple: RemoteAddr host part.
// X-Forwarded-For is only trusted through chi's RealIP middleware when enabled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// JSON-only API
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
