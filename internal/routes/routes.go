package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/handlers"
	"github.com/icanedev/smartcane-api/internal/middleware"
)

// RegisterRoutes registers all application routes under /api
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	otpLimit := middleware.RateLimitByIP(middleware.DefaultOTPRateLimit())

	router.Route("/auth", func(r chi.Router) {
		// Public routes - no authentication required
		r.With(authLimit).Post("/register", authHandler.Register)
		r.With(authLimit).Post("/check-credentials", authHandler.CheckCredentials)
		r.With(authLimit).Post("/login", authHandler.Login)
		r.With(authLimit).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Get("/verify-token", authHandler.VerifyToken)

		r.With(otpLimit).Post("/send-otp", authHandler.SendOTP)
		r.With(otpLimit).Post("/verify-otp", authHandler.VerifyOTP)

		r.With(otpLimit).Post("/forgot-password/request", authHandler.ForgotPasswordRequest)
		r.With(otpLimit).Post("/forgot-password/verify", authHandler.ForgotPasswordVerify)
		r.With(authLimit).Post("/forgot-password/reset", authHandler.ForgotPasswordReset)

		// Protected routes - access cookie required
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(tokenManager))

			r.Get("/profile", authHandler.Profile)
			r.With(otpLimit).Post("/profile/change-email/request", authHandler.ChangeEmailRequest)
			r.With(otpLimit).Post("/profile/change-email/verify", authHandler.ChangeEmailVerify)
		})
	})
}
