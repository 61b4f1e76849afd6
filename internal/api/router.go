package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the middleware settings.
type RouterConfig struct {
	AllowedOrigins string
	JWTSecret      []byte
}

// NewRouter wires middleware and routes.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), RequestID(), CORS(cfg.AllowedOrigins), HTTPMetrics())

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	data := router.Group("/api/v1/data", RequireReady(h.State), JWTAuth(cfg.JWTSecret))
	{
		upload := MaxUploadSize(h.MaxUploadBytes)
		data.POST("/process", upload, h.ProcessDocument)
		data.POST("/extract", upload, h.ExtractDocument)
		data.POST("/analyze", h.AnalyzeText)

		data.GET("/analyses", h.ListAnalyses)
		data.GET("/analysis/:id", h.GetAnalysis)
		data.DELETE("/analysis/:id", h.DeleteAnalysis)
		data.GET("/analytics", h.Analytics)
	}

	return router
}
