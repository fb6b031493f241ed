package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/tuliahq/tulia-backend/internal/config"
	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/handlers"
	"github.com/tuliahq/tulia-backend/internal/middleware"
	"github.com/tuliahq/tulia-backend/internal/routes"
	"github.com/tuliahq/tulia-backend/internal/services"
)

func main() {
	// Load env
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Initialize Cloudinary service
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		if err := handlers.InitCloudinaryService(cfg); err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Profile picture uploads will not be available")
		} else {
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Profile picture uploads will not be available")
	}

	// Connect to MongoDB (payment event audit store). The payment flow works
	// without it - events just go unarchived - so a failure here only warns.
	log.Printf("Connecting to MongoDB...")
	if cfg.MongoURI != "" {
		// Mask password in log for security
		maskedURI := cfg.MongoURI
		if strings.Contains(maskedURI, "@") {
			parts := strings.Split(maskedURI, "@")
			if len(parts) > 0 && strings.Contains(parts[0], ":") {
				userPass := strings.Split(parts[0], ":")
				if len(userPass) >= 3 {
					maskedURI = strings.Replace(maskedURI, userPass[2], "***", 1)
				}
			}
		}
		log.Printf("MongoDB URI: %s", maskedURI)
	}

	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Printf("⚠️  WARNING: failed to connect to MongoDB: %v", err)
		log.Println("Payment event archiving disabled")
	} else {
		defer database.Disconnect()

		if err := services.EnsurePaymentEventIndexes(context.Background()); err != nil {
			log.Printf("⚠️  WARNING: failed to ensure MongoDB payment event indexes: %v", err)
		} else {
			log.Println("✅ MongoDB payment event indexes ensured")
		}

		// Rotate the raw payload archive daily; bookings themselves are never deleted
		services.StartPaymentEventCleanup(24, 90)
		log.Println("✅ Payment event cleanup service started (removes events older than 90 days)")
	}

	// Wire external services from config
	handlers.InitSentimentService(cfg)
	handlers.InitPaymentServices(cfg)

	// Start the Redis booking-update subscriber for the WebSocket stream
	services.StartBookingStream(context.Background())

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Intasend-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Production: SecurityHeaders → HostCheck → GlobalRateLimit → LoginRateLimit
	// Non-production: Redis-based rate limit only
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP + login rate limiting)")
	} else {
		r.Use(middleware.RateLimitMiddleware)
	}

	// STK push endpoints get their own stricter limit in every environment
	r.Use(middleware.BookingRateLimit)

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Setup routes
	routes.SetupRoutes(r)

	// Log registered routes for debugging
	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/auth/signup")
	log.Println("  POST /api/auth/signin")
	log.Println("  POST /api/auth/signout")
	log.Println("  GET  /api/auth/me")
	log.Println("  PUT  /api/profile")
	log.Println("  POST /api/journals")
	log.Println("  GET  /api/journals")
	log.Println("  POST /api/journals/quick-mood")
	log.Println("  GET  /api/mood/summary")
	log.Println("  GET  /api/mood/trend")
	log.Println("  POST /api/bookings")
	log.Println("  GET  /api/bookings")
	log.Println("  POST /api/payments/callback")
	log.Println("  GET  /api/payments/status/{invoiceID}")
	log.Println("  POST /api/payments/success")
	log.Println("  GET  /api/payments/config")
	log.Println("  GET  /api/payments/events/{invoiceID}")
	log.Println("  GET  /ws/bookings")

	log.Printf("🚀 Tulia backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
