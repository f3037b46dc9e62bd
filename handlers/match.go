package handlers

import (
	"github.com/gofiber/fiber/v2"

	"matchmaking-service/middleware"
	"matchmaking-service/services"
)

func SetupMatchRoutes(app *fiber.App, matchmakingService *services.MatchmakingService, contestService *services.ContestService) {
	secured := app.Group("/", middleware.UserContext())

	// Matchmaking: blocking and streamed
	secured.Post("/match", matchmakingService.FindMatch)
	secured.Post("/match/stream", matchmakingService.StreamMatch)

	// Contest lifecycle
	secured.Post("/match/start", contestService.StartMatch)
	secured.Post("/match/finish", contestService.FinishMatch)
	secured.Post("/match/cancel/:id", contestService.CancelMatch)
	secured.Get("/match/:id", contestService.GetMatch)
}
