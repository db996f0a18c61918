package rest

import (
	"net/http"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/metrics"
	"github.com/aurorahunt/hunt-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Handler  *Handler
	Verifier security.AccessTokenVerifier

	// Cache backs the per-IP limiter; nil falls back to an in-process limiter.
	Cache        domain.CacheRepository
	RateLimit    RateLimit
	PaymentLimit RateLimit
	TrustProxy   bool
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}
	if d.PaymentLimit.Limit <= 0 {
		d.PaymentLimit = RateLimit{Enabled: true, Limit: 5, Window: time.Minute}
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(SecurityHeaders)

	r.Get("/healthz", d.Handler.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if d.RateLimit.Enabled {
			r.Use(IPRateLimit(d.Cache, d.RateLimit))
		}

		r.Post("/webhooks/payments", d.Handler.PaymentWebhook)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier))

			r.Get("/me/hunts", d.Handler.MyHunts)

			r.Route("/hunts/{eventID}", func(r chi.Router) {
				r.Post("/join", d.Handler.Join)
				r.Delete("/join", d.Handler.Cancel)
				r.Get("/me", d.Handler.GetMyParticipation)

				// organizer / staff
				r.Get("/participants", d.Handler.Participants)
				r.Get("/waitlist", d.Handler.Waitlist)
				r.Get("/stats", d.Handler.Stats)
				r.Post("/participants/{userID}/approve", d.Handler.Approve)
				r.Post("/participants/{userID}/reject", d.Handler.Reject)
				r.Post("/participants/{userID}/payment-received", d.Handler.PaymentReceived)

				r.Get("/payments/eligibility", d.Handler.PaymentEligibility)
				r.Post("/payments/mark-paid", d.Handler.MarkPaid)
				r.With(PerUserRateLimit(d.PaymentLimit.Limit, d.PaymentLimit.Window)).
					Post("/payments", d.Handler.InitiatePayment)
			})
		})
	})

	return r
}
