// handlers/portfolio_routes.go
package handlers

import (
	"coin-offers-system/middleware"
	"coin-offers-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPortfolioRoutes(app *fiber.App, portfolioService *services.PortfolioService) {
	// 🔐 All portfolio routes require user context from the Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/portfolios", portfolioService.CreatePortfolioEndpoint)
	secured.Get("/users/me/portfolios", portfolioService.GetMyPortfolios)
}
