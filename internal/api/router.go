/**
 * @description
 * This file sets up the HTTP router for the membership-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * the necessary middleware for authentication, CORS, logging, panic recovery,
 * and timeouts.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the portal frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// MembershipRoutes creates and returns a new router for the membership service.
func MembershipRoutes(h *MembershipHandlers, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway callbacks are unauthenticated; the HMAC signature check inside
	// the service is what authenticates them.
	r.Post("/payments/callback", h.PaymentCallbackHandler)

	// Member endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/memberships/apply", h.SubmitApplicationHandler)
		r.Post("/memberships/documents", h.UploadDocumentHandler)
		r.Get("/memberships/me", h.GetOwnMembershipHandler)
		r.Get("/memberships/me/orders", h.ListOwnOrdersHandler)
		r.Get("/memberships/{id}", h.GetMembershipHandler)
		r.Post("/memberships/{id}/pay", h.StartPaymentHandler)
		r.Post("/memberships/{id}/cancel", h.CancelMembershipHandler)
	})

	// Admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Use(RequireAdmin)

		r.Get("/admin/memberships", h.ListMembershipsHandler)
		r.Post("/admin/memberships/manual", h.CreateManualMembershipHandler)
		r.Post("/admin/memberships/{id}/review", h.ReviewApplicationHandler)
		r.Post("/admin/memberships/{id}/manual-payment", h.RecordManualPaymentHandler)
		r.Put("/admin/memberships/{id}/member-code", h.AssignMemberCodeHandler)
		r.Patch("/admin/memberships/{id}", h.UpdateMembershipHandler)
		r.Delete("/admin/memberships/{id}", h.DeleteMembershipHandler)
		r.Get("/admin/memberships/{id}/orders", h.ListMembershipOrdersHandler)
		r.Post("/admin/orders/{id}/invoice", h.RegenerateInvoiceHandler)
	})

	return r
}
