package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/playloop/arena/handlers"
	"github.com/playloop/arena/middleware"
)

// SetupRoutes assembles the HTTP surface: tournament CRUD, the guarded
// score-submission endpoint, health, and the websocket upgrade.
func SetupRoutes(
	router *chi.Mux,
	logger *slog.Logger,
	allowedOrigins []string,
	tokens *middleware.TokenManager,
	tournamentHandler *handlers.TournamentHandler,
	healthHandler *handlers.HealthHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", healthHandler.Health)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Post("/", tournamentHandler.Create)
		r.Get("/{tournamentID}", tournamentHandler.Get)
		r.Post("/{tournamentID}/join", tournamentHandler.Join)
		r.Post("/{tournamentID}/start", tournamentHandler.Start)
		r.Post("/{tournamentID}/advance", tournamentHandler.AdvanceRound)
		r.Get("/{tournamentID}/leaderboard", tournamentHandler.Leaderboard)
		r.Get("/{tournamentID}/ghost", tournamentHandler.GhostData)

		r.Group(func(r chi.Router) {
			r.Use(tokens.Authenticate)
			r.Post("/{tournamentID}/rounds/scores", tournamentHandler.SubmitScore)
		})
	})

	router.Get("/ws", webSocketHandler.ServeWs)
}
