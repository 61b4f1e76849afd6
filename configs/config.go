// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEY             string
	MODEL_NAME                 string
	OCR_MODEL_NAME             string
	OCR_PROVIDER               string // "gemini" or "tesseract"
	ANALYSIS_TEMPERATURE       float64
	ANALYSIS_MAX_OUTPUT_TOKENS int
	ANALYSIS_TIMEOUT           time.Duration
	GEMINI_REQUESTS_PER_MINUTE int

	// Gemini Pricing Configuration (per 1M tokens in USD)
	GEMINI_INPUT_PRICE_PER_MILLION  float64
	GEMINI_OUTPUT_PRICE_PER_MILLION float64
	USD_TO_THB                      float64

	// Server Configuration
	PORT                   string
	UPLOAD_DIR             string
	ALLOWED_ORIGINS        string
	JWT_SECRET             string
	EXPOSE_PROVIDER_ERRORS bool // development only

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Bill lifecycle
	BILL_RETENTION      time.Duration
	SWEEP_INTERVAL      time.Duration
	MAX_BILLS_PER_USER  int
	MAX_UPLOAD_MB       int
	ALLOWED_MEDIA_TYPES []string
	ANALYTICS_CACHE_TTL time.Duration

	// Extraction
	SCANNED_PDF_OCR_ENABLED bool
	MIN_PDF_TEXT_LENGTH     int
	OCR_DPI                 int
	TESSERACT_PATH          string
	TESSERACT_LANG          string
	PDFTOPPM_PATH           string

	// Image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int
)

func init() {
	// Defaults so packages behave sanely in tests without LoadConfig.
	applyDefaults()
}

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	applyDefaults()

	if GEMINI_API_KEY == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}
	if JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	log.Println("✓ Configuration loaded successfully")
}

func applyDefaults() {
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	MODEL_NAME = getEnv("MODEL_NAME", "gemini-2.5-flash")
	OCR_MODEL_NAME = getEnv("OCR_MODEL_NAME", MODEL_NAME)
	OCR_PROVIDER = strings.ToLower(getEnv("OCR_PROVIDER", "gemini"))
	ANALYSIS_TEMPERATURE = getEnvFloat("ANALYSIS_TEMPERATURE", 0.2)
	ANALYSIS_MAX_OUTPUT_TOKENS = getEnvInt("ANALYSIS_MAX_OUTPUT_TOKENS", 8192)
	ANALYSIS_TIMEOUT = getEnvDuration("ANALYSIS_TIMEOUT", 120*time.Second)
	GEMINI_REQUESTS_PER_MINUTE = getEnvInt("GEMINI_REQUESTS_PER_MINUTE", 60)

	// Gemini 2.5 Flash pricing
	GEMINI_INPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_INPUT_PRICE_PER_MILLION", 0.30)
	GEMINI_OUTPUT_PRICE_PER_MILLION = getEnvFloat("GEMINI_OUTPUT_PRICE_PER_MILLION", 2.50)
	USD_TO_THB = getEnvFloat("USD_TO_THB", 36.0)

	PORT = getEnv("PORT", "8080")
	UPLOAD_DIR = getEnv("UPLOAD_DIR", "uploads")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")
	JWT_SECRET = getEnv("JWT_SECRET", "")
	EXPOSE_PROVIDER_ERRORS = getEnvBool("EXPOSE_PROVIDER_ERRORS", false)

	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "bill_analyzer")

	BILL_RETENTION = getEnvDuration("BILL_RETENTION", 24*time.Hour)
	SWEEP_INTERVAL = getEnvDuration("SWEEP_INTERVAL", time.Hour)
	MAX_BILLS_PER_USER = getEnvInt("MAX_BILLS_PER_USER", 4)
	MAX_UPLOAD_MB = getEnvInt("MAX_UPLOAD_MB", 5)
	ALLOWED_MEDIA_TYPES = getEnvList("ALLOWED_MEDIA_TYPES", []string{"application/pdf", "image/jpeg", "image/png"})
	ANALYTICS_CACHE_TTL = getEnvDuration("ANALYTICS_CACHE_TTL", 30*time.Second)

	SCANNED_PDF_OCR_ENABLED = getEnvBool("SCANNED_PDF_OCR_ENABLED", true)
	MIN_PDF_TEXT_LENGTH = getEnvInt("MIN_PDF_TEXT_LENGTH", 50)
	OCR_DPI = getEnvInt("OCR_DPI", 300)
	TESSERACT_PATH = getEnv("TESSERACT_PATH", "tesseract")
	TESSERACT_LANG = getEnv("TESSERACT_LANG", "eng")
	PDFTOPPM_PATH = getEnv("PDFTOPPM_PATH", "pdftoppm")

	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)
}

// MaxUploadBytes returns the upload cap in bytes.
func MaxUploadBytes() int64 {
	return int64(MAX_UPLOAD_MB) << 20
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
