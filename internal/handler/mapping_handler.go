package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortly/internal/model"
	"github.com/fonsecaaso/shortly/internal/repository"
	"github.com/fonsecaaso/shortly/internal/service"
)

type CreateMappingRequest struct {
	URL        string `json:"url" binding:"required"`
	TTLMinutes *int   `json:"ttl_minutes" binding:"omitempty,min=1"`
}

type MappingResponse struct {
	Message   string     `json:"message,omitempty"`
	ShortCode string     `json:"short_code"`
	ShortURL  string     `json:"short_url,omitempty"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type MappingHandler struct {
	service *service.MappingService
	logger  *zap.Logger
}

func NewMappingHandler(service *service.MappingService) *MappingHandler {
	return &MappingHandler{
		service: service,
		logger:  zap.L().With(zap.String("component", "MappingHandler")),
	}
}

func (h *MappingHandler) CreateMapping(c *gin.Context) {
	var req CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_JSON",
		})
		return
	}

	mapping, isNew, err := h.service.Shorten(c.Request.Context(), req.URL, req.TTLMinutes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	message := "URL already exists, returning existing short code"
	if isNew {
		status = http.StatusCreated
		message = "URL shortened successfully"
	}

	c.JSON(status, h.toResponse(c, mapping, message))
}

// Redirect resolves a short code and issues a redirect to the original URL.
func (h *MappingHandler) Redirect(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Code parameter is required",
			Code:  "MISSING_CODE",
		})
		return
	}

	mapping, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Redirect(http.StatusFound, mapping.OriginalURL)
}

// GetMapping returns mapping metadata without redirecting.
func (h *MappingHandler) GetMapping(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Code parameter is required",
			Code:  "MISSING_CODE",
		})
		return
	}

	mapping, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, mapping, "URL retrieved successfully"))
}

func (h *MappingHandler) ListMappings(c *gin.Context) {
	mappings, err := h.service.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	responses := make([]MappingResponse, 0, len(mappings))
	for i := range mappings {
		responses = append(responses, h.toResponse(c, &mappings[i], ""))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "URLs retrieved successfully",
		"urls":    responses,
	})
}

func (h *MappingHandler) DeleteMapping(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))

	deleted, err := h.service.Delete(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Short URL not found",
			Code:  "URL_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "URL deleted successfully"})
}

func (h *MappingHandler) SweepExpired(c *gin.Context) {
	count, err := h.service.SweepExpired(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expired URLs swept successfully",
		"deleted": count,
	})
}

func (h *MappingHandler) toResponse(c *gin.Context, m *model.Mapping, message string) MappingResponse {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return MappingResponse{
		Message:   message,
		ShortCode: m.ShortCode,
		ShortURL:  fmt.Sprintf("%s://%s/%s", scheme, c.Request.Host, m.ShortCode),
		URL:       m.OriginalURL,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpirationTime,
	}
}

func (h *MappingHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid URL format",
			Code:  "INVALID_URL",
		})
	case errors.Is(err, repository.ErrMappingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Short URL not found",
			Code:  "URL_NOT_FOUND",
		})
	case errors.Is(err, service.ErrCodeSpaceExhausted), errors.Is(err, service.ErrAllocationFailed):
		h.logger.Error("Short code allocation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "ALLOCATION_FAILED",
		})
	case errors.Is(err, repository.ErrDatabaseError):
		h.logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Code:  "DB_ERROR",
		})
	default:
		h.logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
