package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	authsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/auth"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService     *authsvc.Service
	Ledger          handlers.PurchaseLedger
	Events          handlers.PaymentEventHandler
	Verifier        *webhooks.Verifier
	SignatureHeader string
	Health          *handlers.HealthHandler
	Gatherer        prometheus.Gatherer
	Logger          *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	purchaseHandler := handlers.NewPurchaseHandler(deps.Ledger)
	webhookHandler := handlers.NewWebhookHandler(deps.Verifier, deps.Events, deps.SignatureHeader, deps.Logger)
	healthHandler := deps.Health
	if healthHandler == nil {
		healthHandler = handlers.NewHealthHandler()
	}
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)
	operatorMW := RequireRole(authsvc.RoleOperator)
	adminMW := RequireRole(authsvc.RoleAdmin)

	r.Get("/healthz", healthHandler.Get)
	r.Get("/readyz", healthHandler.Ready)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/webhooks/pix", webhookHandler.Pix)

	r.Route("/rpc", func(r chi.Router) {
		r.Use(authMW)

		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/purchases", func(r chi.Router) {
			r.With(operatorMW).Get("/", purchaseHandler.List)
			r.With(operatorMW).Get("/stats", purchaseHandler.Stats)
			r.With(operatorMW).Get("/{id}", purchaseHandler.Get)
			r.With(operatorMW).Post("/{id}/complete", purchaseHandler.Complete)
			r.With(adminMW).Post("/{id}/refund", purchaseHandler.Refund)
		})
	})
}
