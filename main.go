package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"coin-offers-system/handlers"
	"coin-offers-system/middleware"
	"coin-offers-system/models"
	"coin-offers-system/services"
	"coin-offers-system/utils"
	"coin-offers-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError lets portfolio creation catch gorm.ErrDuplicatedKey from
	// the (user, offer) unique index.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Offer{},
		&models.Portfolio{},
		&models.User{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	priceServiceURL := os.Getenv("PRICE_SERVICE_URL")
	if priceServiceURL == "" {
		log.Fatal("PRICE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("OFFER_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("OFFER_SERVICE_TOKEN environment variable not set")
	}
	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}

	priceClient := services.NewPriceServiceClient(priceServiceURL, serviceToken)

	offerService := services.NewOfferService(db, priceClient)
	offerService.PairsPerOffer = envInt("OFFER_PAIRS_PER_DAY", offerService.PairsPerOffer)
	offerService.BatchDays = envInt("OFFER_BATCH_DAYS", offerService.BatchDays)
	offerService.MaxLeadDays = envInt("OFFER_MAX_LEAD_DAYS", offerService.MaxLeadDays)

	portfolioService := services.NewPortfolioService(db, offerService)
	portfolioService.StrictCompletion = envBool("AWARD_STRICT_COMPLETION", portfolioService.StrictCompletion)

	userService := services.NewUserService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profileSyncWorker := workers.NewProfileSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", serviceToken)
	profileSyncWorker.Start(ctx)

	sched, err := services.StartOfferScheduler(ctx, offerService, portfolioService)
	if err != nil {
		log.Fatal("failed to start offer scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	handlers.SetupOfferRoutes(app, offerService)
	handlers.SetupPortfolioRoutes(app, portfolioService)
	handlers.SetupUserRoutes(app, userService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("⚠️  Invalid %s=%q, using default %t", key, v, fallback)
	}
	return fallback
}
