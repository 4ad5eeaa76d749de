package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/http/handlers"
	"github.com/pager/server/internal/middleware"
	"github.com/pager/server/internal/transport"
)

// NewRouter creates the HTTP router: the websocket endpoint, the media
// surface and the signed-payload admin endpoints
func NewRouter(
	verifier *auth.Verifier,
	live *transport.Server,
	signupHandler *handlers.SignupHandler,
	mediaHandler *handlers.MediaHandler,
	pagerHandler *handlers.PagerHandler,
	lockoutHandler *handlers.LockoutHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/ping", handlers.HandlePing)
	r.Get("/chatserver", live.HandleWS)

	// The signup surface is unauthenticated; give it an IP budget
	signupLimiter := middleware.NewRateLimiter(10*time.Minute, 10)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(signupLimiter, middleware.GetIPKey))
			r.Get("/check_uid/{uid}", signupHandler.HandleCheckUID)
			r.Post("/register", signupHandler.HandleRegister)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.PayloadAuth(verifier))
			r.Post("/page", pagerHandler.HandlePage)
			r.Post("/lockout", lockoutHandler.HandleLockout)
		})

		r.Get("/media/image/{resourceID}/{sessionToken}", mediaHandler.HandleGetImage)
		r.With(middleware.HeaderAuth(verifier)).Post("/media/image/upload", mediaHandler.HandleUpload)
	})

	return r
}
