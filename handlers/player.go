package handlers

import (
	"github.com/gofiber/fiber/v2"

	"matchmaking-service/middleware"
	"matchmaking-service/services"
)

func SetupPlayerRoutes(app *fiber.App, playerService *services.PlayerService) {
	app.Get("/leaderboard", playerService.Leaderboard)
	app.Get("/players/:id", playerService.GetPlayer)

	secured := app.Group("/", middleware.UserContext())
	secured.Post("/players", playerService.CreatePlayer)
}
