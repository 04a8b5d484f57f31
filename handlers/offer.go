// handlers/offer_routes.go
package handlers

import (
	"coin-offers-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupOfferRoutes(app *fiber.App, offerService *services.OfferService) {
	// 🔓 Public reads — *no user context*, but still behind Gateway auth
	app.Get("/offers", offerService.GetRecentOffers)
	app.Get("/offers/latest", offerService.GetLatestOffer)
	app.Get("/offers/day/:day", offerService.GetOfferByDayEndpoint)
	app.Get("/offers/:id", offerService.GetOfferByIDEndpoint)
}
