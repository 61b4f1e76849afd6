// handlers.go - HTTP handlers for bill upload, listing and analytics.

package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/bills"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/extract"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the bill API.
type Handler struct {
	Bills                *bills.Service
	State                *common.ServerState
	UploadDir            string
	MaxUploadBytes       int64
	AllowedMediaTypes    []string
	Retention            time.Duration
	ExposeProviderErrors bool
}

// AnalyzeRequest is the body of POST /data/analyze.
type AnalyzeRequest struct {
	ExtractedText string `json:"extractedText"`
	CustomPrompt  string `json:"customPrompt"`
}

// uploadExtensions are the extensions used to guess a missing media type.
var uploadExtensions = map[string]struct{}{".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}}

// upload is a bill saved to the upload directory.
type upload struct {
	path      string
	fileName  string
	mediaType string
}

// Root answers GET /.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Bill analyzer API is running"})
}

// Health reports warming until storage and the startup sweep are done.
func (h *Handler) Health(c *gin.Context) {
	status := h.State.Status()
	code := http.StatusOK
	if status != common.StatusReady {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}

// ProcessDocument handles POST /api/v1/data/process: upload, extract,
// analyze and store one bill.
func (h *Handler) ProcessDocument(c *gin.Context) {
	up, ok := h.receiveUpload(c)
	if !ok {
		return
	}

	rec, err := h.Bills.Submit(c.Request.Context(), bills.Submission{
		RequestID:    RequestIDFromContext(c),
		UserID:       UserIDFromContext(c),
		FileName:     up.fileName,
		FilePath:     up.path,
		MediaType:    up.mediaType,
		CustomPrompt: c.PostForm("customPrompt"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bill analyzed successfully",
		"data": gin.H{
			"id":     rec.ID.Hex(),
			"userId": rec.UserID,
			"extraction": gin.H{
				"fileName":     rec.OriginalFileName,
				"totalPages":   rec.TotalPages,
				"extractedVia": rec.ExtractedVia,
			},
			"analysis":  rec.Analysis,
			"createdAt": rec.CreatedAt,
		},
	})
}

// ExtractDocument handles POST /api/v1/data/extract: extraction only.
func (h *Handler) ExtractDocument(c *gin.Context) {
	up, ok := h.receiveUpload(c)
	if !ok {
		return
	}

	res, err := h.Bills.ExtractOnly(c.Request.Context(), bills.Submission{
		RequestID: RequestIDFromContext(c),
		UserID:    UserIDFromContext(c),
		FileName:  up.fileName,
		FilePath:  up.path,
		MediaType: up.mediaType,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Text extracted successfully",
		"data": gin.H{
			"fileName":      up.fileName,
			"fileType":      res.FileType,
			"totalPages":    res.TotalPages,
			"extractedVia":  res.Via,
			"extractedText": res.Text,
		},
	})
}

// AnalyzeText handles POST /api/v1/data/analyze: analysis of supplied text.
func (h *Handler) AnalyzeText(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Request body must be JSON with 'extractedText'",
		})
		return
	}

	result, err := h.Bills.AnalyzeText(c.Request.Context(), RequestIDFromContext(c), UserIDFromContext(c), req.ExtractedText, req.CustomPrompt)
	if err != nil {
		h.writeError(c, err)
		return
	}

	promptUsed := "default"
	if strings.TrimSpace(req.CustomPrompt) != "" {
		promptUsed = "custom"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Analysis completed",
		"data": gin.H{
			"analysis":   result,
			"promptUsed": promptUsed,
		},
	})
}

// ListAnalyses handles GET /api/v1/data/analyses.
func (h *Handler) ListAnalyses(c *gin.Context) {
	q := storage.ListQuery{
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
		Status: storage.Status(c.Query("status")),
	}.Normalized()

	if q.Status != "" && !q.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "status must be one of processing, completed, failed",
			"field":   "status",
		})
		return
	}

	records, total, err := h.Bills.List(c.Request.Context(), UserIDFromContext(c), q)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bill analyses retrieved successfully",
		"data": gin.H{
			"analyses":    records,
			"totalPages":  int(math.Ceil(float64(total) / float64(q.Limit))),
			"currentPage": q.Page,
			"total":       total,
		},
	})
}

// GetAnalysis handles GET /api/v1/data/analysis/:id.
func (h *Handler) GetAnalysis(c *gin.Context) {
	rec, err := h.Bills.Get(c.Request.Context(), UserIDFromContext(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bill analysis retrieved successfully",
		"data":    rec,
	})
}

// DeleteAnalysis handles DELETE /api/v1/data/analysis/:id.
func (h *Handler) DeleteAnalysis(c *gin.Context) {
	id := c.Param("id")
	if err := h.Bills.Delete(c.Request.Context(), UserIDFromContext(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Bill analysis deleted successfully",
		"data":    gin.H{"id": id},
	})
}

// Analytics handles GET /api/v1/data/analytics.
func (h *Handler) Analytics(c *gin.Context) {
	a, err := h.Bills.Analytics(c.Request.Context(), UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	recent := make([]gin.H, 0, len(a.Recent))
	for _, rec := range a.Recent {
		item := gin.H{
			"id":               rec.ID.Hex(),
			"originalFileName": rec.OriginalFileName,
			"createdAt":        rec.CreatedAt,
			"status":           rec.Status,
		}
		if summary, ok := rec.Analysis.Document()["overall_summary"]; ok {
			item["analysis"] = gin.H{"overall_summary": summary}
		}
		recent = append(recent, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Analytics retrieved successfully",
		"data": gin.H{
			"totalAnalyses":      a.Counts.Total,
			"completedAnalyses":  a.Counts.Completed,
			"failedAnalyses":     a.Counts.Failed,
			"processingAnalyses": a.Counts.Processing,
			"recentAnalyses":     recent,
		},
	})
}

// receiveUpload validates the multipart file and saves it under UploadDir.
// It writes the error response itself and returns false on failure.
func (h *Handler) receiveUpload(c *gin.Context) (*upload, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			h.badUpload(c, fmt.Sprintf("File too large. Maximum size is %d MB", h.MaxUploadBytes>>20))
		case errors.Is(err, http.ErrMissingFile):
			h.badUpload(c, "No file uploaded. Upload a PDF or image file.")
		default:
			h.badUpload(c, "Invalid multipart upload")
		}
		return nil, false
	}

	if fh.Size > h.MaxUploadBytes {
		h.badUpload(c, fmt.Sprintf("File too large. Maximum size is %d MB", h.MaxUploadBytes>>20))
		return nil, false
	}

	fileName := filepath.Base(fh.Filename)
	mediaType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = ""
		if _, known := uploadExtensions[strings.ToLower(filepath.Ext(fileName))]; known {
			mediaType = processor.MediaTypeForPath(fileName)
		}
	}
	_, fileType, err := extract.Classify(mediaType, h.AllowedMediaTypes)
	if err != nil {
		h.badUpload(c, "Unsupported file type. Upload a PDF, JPEG or PNG file.")
		return nil, false
	}

	ext := ".pdf"
	if fileType == extract.FileTypeImage {
		ext = ".jpg"
		if strings.Contains(strings.ToLower(mediaType), "png") {
			ext = ".png"
		}
	}
	path := filepath.Join(h.UploadDir, uuid.New().String()+ext)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		os.Remove(path)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to store upload",
		})
		return nil, false
	}

	return &upload{path: path, fileName: fileName, mediaType: mediaType}, true
}

func (h *Handler) badUpload(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": message,
		"field":   "file",
	})
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
