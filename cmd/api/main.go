// main.go - The entry point: wiring, startup sweep and graceful shutdown.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/configs"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/ai"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/api"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/bills"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/extract"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if configs.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Step 1: Create the UPLOAD_DIR folder if it doesn't exist
	if err := os.MkdirAll(configs.UPLOAD_DIR, 0755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}

	// Step 2: MongoDB
	if err := storage.InitMongoDB(configs.MONGO_URI, configs.MONGO_DB_NAME); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer storage.CloseMongoDB()

	store := storage.NewMongoBillStore(storage.GetMongoDB().Collection(storage.BillCollection))
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureIndexes(indexCtx); err != nil {
		log.Printf("WARN failed to create indexes: %v", err)
	}
	cancelIndex()

	// Step 3: Gemini analysis and OCR
	gemini, err := ai.NewGeminiClient(context.Background(), ai.GeminiConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}
	defer gemini.Close()

	ocr, renderer, err := ai.CreateOCRProvider(configs.OCR_PROVIDER, gemini, processor.ExecRunner{})
	if err != nil {
		log.Fatalf("Failed to create OCR provider: %v", err)
	}
	extractor := extract.NewExtractor(ocr, renderer, configs.SCANNED_PDF_OCR_ENABLED, configs.MIN_PDF_TEXT_LENGTH, configs.ALLOWED_MEDIA_TYPES)

	// Step 4: Bill service and retention sweeper
	svc := bills.NewService(store, extractor, gemini, bills.Config{
		MaxBillsPerUser:   configs.MAX_BILLS_PER_USER,
		AnalyticsCacheTTL: configs.ANALYTICS_CACHE_TTL,
	})
	sweeper := bills.NewSweeper(store, configs.BILL_RETENTION, configs.SWEEP_INTERVAL, svc.InvalidateAnalytics)

	state := common.NewServerState()
	router := api.NewRouter(&api.Handler{
		Bills:                svc,
		State:                state,
		UploadDir:            configs.UPLOAD_DIR,
		MaxUploadBytes:       configs.MaxUploadBytes(),
		AllowedMediaTypes:    configs.ALLOWED_MEDIA_TYPES,
		Retention:            configs.BILL_RETENTION,
		ExposeProviderErrors: configs.EXPOSE_PROVIDER_ERRORS,
	}, api.RouterConfig{
		AllowedOrigins: configs.ALLOWED_ORIGINS,
		JWTSecret:      []byte(configs.JWT_SECRET),
	})

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   configs.ANALYSIS_TIMEOUT + time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s", configs.PORT)
		log.Println("API Endpoints:")
		log.Println("  POST   /api/v1/data/process")
		log.Println("  POST   /api/v1/data/extract")
		log.Println("  POST   /api/v1/data/analyze")
		log.Println("  GET    /api/v1/data/analyses")
		log.Println("  GET    /api/v1/data/analysis/:id")
		log.Println("  DELETE /api/v1/data/analysis/:id")
		log.Println("  GET    /api/v1/data/analytics")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Step 6: Startup sweep, then serve as ready
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()

	if res := sweeper.RunOnce(sweepCtx); res.Err != nil {
		log.Printf("WARN startup sweep failed: %v", res.Err)
	}
	state.MarkReady()
	sweeper.Start(sweepCtx)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
