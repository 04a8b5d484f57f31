// handlers/user_routes.go
package handlers

import (
	"coin-offers-system/middleware"
	"coin-offers-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	// 🔓 Public
	app.Get("/leaderboard", userService.GetLeaderboard)

	// 🔐 Authenticated
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/users/me", userService.RegisterMe)
	secured.Get("/users/me", userService.GetMe)
	secured.Post("/users/me/avatar", userService.UploadMyAvatar)
}
