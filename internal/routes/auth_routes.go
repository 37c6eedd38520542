package routes

import (
	"github.com/go-chi/chi/v5"

	"asklytics/internal/handlers"
)

func RegisterAuthRoutes(router chi.Router, h *handlers.PasswordResetHandler) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/forgot-password/email", h.ForgotPasswordEmail)
		r.Post("/forgot-password/mobile", h.ForgotPasswordMobile)
		r.Post("/reset-password/email", h.ResetPasswordEmail)
		r.Post("/reset-password/mobile", h.ResetPasswordMobile)
	})
}
