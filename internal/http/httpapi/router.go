package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagestudio/internal/http/handlers"
	"imagestudio/internal/infra"
	mw "imagestudio/internal/middleware"
)

// NewRouter assembles the web front end's routes and middleware chain.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.Logger(logger),
		mw.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/", app.Index)
	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(mw.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/v1/images/edit", app.ImagesEdit)
		r.Post("/v1/images/compose", app.ImagesCompose)
		r.Post("/v1/images/inpaint", app.ImagesInpaint)
	})

	return r
}
