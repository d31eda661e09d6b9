package api

import (
	"github.com/gofiber/fiber/v3"

	"perpcarry/api/handlers"
)

func SetupRoutes(app *fiber.App, carryHandler *handlers.CarryHandler) {
	v1 := app.Group("/v1")

	v1.Get("/symbols", carryHandler.GetSymbols)
	v1.Get("/carry/:symbol", carryHandler.GetCarry)
	v1.Get("/carry/:symbol/funding", carryHandler.GetFundingSeries)
	v1.Get("/carry/:symbol/fair", carryHandler.GetFairPrice)
}
