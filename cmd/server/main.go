package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/finflow/backend/docs"
	"github.com/finflow/backend/internal/config"
	"github.com/finflow/backend/internal/database"
	"github.com/finflow/backend/internal/handlers"
	mW "github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/services"
)

// @title FinFlow Cashflow API
// @version 1.0
// @description Bank statement reconciliation and cashflow projection service
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "FinFlow Cashflow API"
	docs.SwaggerInfo.Description = "Bank statement reconciliation and cashflow projection service"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	projectionCfg := config.LoadProjectionConfig()

	// Wire services
	store := services.NewPostgresStatementStore(db)
	companyService := services.NewCompanyService(db)
	projectionService := services.NewProjectionService(db, projectionCfg)
	refreshQueue := services.NewRefreshQueue(redisClient, projectionService, projectionCfg)
	statementService := services.NewStatementService(store, companyService, refreshQueue)
	recurringService := services.NewRecurringPaymentService(db, companyService, refreshQueue)
	positionService := services.NewPositionService(db, projectionService, projectionCfg)
	exportService := services.NewPaymentExportService(db, projectionService, companyService)
	qrService := services.NewQRService(db, redisClient)
	cashflowHandler := handlers.NewCashflowHandler(projectionService, positionService, companyService, refreshQueue)
	qrHandler := handlers.NewQRHandler(qrService, companyService)

	// Background refresh worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	refreshQueue.StartWorker(workerCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Statement ingestion and maintenance
			r.Post("/statements/ingest", statementService.IngestStatements)
			r.Get("/statements", statementService.ListStatements)
			r.Get("/statements/{id}", statementService.GetStatementByID)
			r.Put("/statements/{id}/account-number", statementService.UpdateAccountNumber)
			r.Put("/statements/{id}/bank", statementService.UpdateBankAffiliation)

			// Recurring payments
			r.Post("/recurring-payments", recurringService.CreateRecurringPayment)
			r.Get("/recurring-payments", recurringService.ListRecurringPayments)
			r.Put("/recurring-payments/{id}", recurringService.UpdateRecurringPayment)
			r.Delete("/recurring-payments/{id}", recurringService.DeleteRecurringPayment)

			// Projections and position
			r.Post("/projections/refresh", cashflowHandler.RefreshProjections)
			r.Get("/projections", cashflowHandler.ListProjections)
			r.Get("/cash-position", cashflowHandler.GetCashPosition)
			r.Post("/projections/export/pacs008", exportService.ExportPaymentInstruction)

			// Invoice payment references
			r.Post("/invoices/{id}/payment-reference", qrHandler.GeneratePaymentReference)
			r.Post("/payment-references/resolve", qrHandler.ResolvePaymentReference)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
