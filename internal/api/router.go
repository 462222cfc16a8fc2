// Package api exposes the JSON HTTP surface of the scoring service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"example.com/octofit/internal/auth"
	"example.com/octofit/internal/catalog"
	"example.com/octofit/internal/ledger"
	"example.com/octofit/internal/membership"
	"example.com/octofit/internal/profile"
	"example.com/octofit/internal/ranking"
)

// Services bundles the domain services the handlers call.
type Services struct {
	Catalog  *catalog.Registry
	Ledger   *ledger.Service
	Teams    *membership.Manager
	Rankings *ranking.Aggregator
	Profiles *profile.Service
}

// Options tunes the router.
type Options struct {
	Auth           auth.Config
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	svc Services
}

// NewHandler builds a Handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

// Router wires every route behind the shared middleware stack. Trailing
// slashes are optional on all paths.
func (h *Handler) Router(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	authn := auth.NewMiddleware(opts.Auth, nil)
	admin := auth.RequireScope(auth.ScopeAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(authn.Wrap)

		r.Route("/activities", func(r chi.Router) {
			r.Get("/", h.listActivities)
			r.Post("/", h.createActivity)
			r.Get("/stats", h.activityStats)
			r.Get("/leaderboard", h.userLeaderboard)

			r.Get("/types", h.listActivityTypes)
			r.With(admin).Post("/types", h.createActivityType)
			r.With(admin).Delete("/types/{typeID}", h.deleteActivityType)

			r.Get("/{activityID}", h.getActivity)
			r.With(admin).Post("/{activityID}/void", h.voidActivity)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Get("/", h.listTeams)
			r.Post("/", h.createTeam)
			r.Get("/my-teams", h.myTeams)
			r.Get("/leaderboard", h.teamLeaderboard)
			r.Get("/{teamID}", h.getTeam)
			r.Post("/{teamID}/join", h.joinTeam)
			r.Post("/{teamID}/leave", h.leaveTeam)
		})

		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.updateProfile)
		r.Patch("/profile", h.updateProfile)

		r.With(admin).Get("/admin/reconcile", h.reconcile)
	})
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// caller returns the authenticated user id; the auth middleware guarantees
// claims on every /api route.
func caller(r *http.Request) string {
	claims, _ := auth.FromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Subject
}
