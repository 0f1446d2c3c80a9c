package ingestion

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
)

const messageStored = "Lead received and stored successfully"

type Handler struct {
	service      *Service
	maxBodyBytes int64
	logger       logger.Logger
}

func NewHandler(service *Service, maxBodyBytes int64, log logger.Logger) *Handler {
	return &Handler{service: service, maxBodyBytes: maxBodyBytes, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/leads", h.ReceiveLead)
	}
}

type IngestResponse struct {
	Message string `json:"message"`
	LeadID  string `json:"lead_id"`
	S3Key   string `json:"s3_key"`
}

// ReceiveLead godoc
// @Summary      Receive a CRM lead webhook
// @Description  Validates the payload, stores the raw lead and schedules delayed enrichment
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  IngestResponse
// @Success      202  {object}  IngestResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      413  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /webhooks/leads [post]
func (h *Handler) ReceiveLead(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.ObserveIngest(time.Since(start), "rejected")
			c.JSON(http.StatusRequestEntityTooLarge, apperrors.ToErrorResponse(
				apperrors.NewError(apperrors.CodeValidation, "payload too large", http.StatusRequestEntityTooLarge)))
			return
		}
		h.fail(c, start, apperrors.Validation("failed to read request body").WithCause(err))
		return
	}

	result, err := h.service.Ingest(ctx, body)
	if err != nil {
		h.fail(c, start, err)
		return
	}

	if !result.Accepted {
		metrics.ObserveIngest(time.Since(start), "filtered")
		c.JSON(http.StatusAccepted, IngestResponse{
			Message: "Lead ignored by acceptance filter",
			LeadID:  result.LeadID,
		})
		return
	}

	metrics.ObserveIngest(time.Since(start), "stored")
	c.JSON(http.StatusOK, IngestResponse{
		Message: messageStored,
		LeadID:  result.LeadID,
		S3Key:   result.Key,
	})
}

func (h *Handler) fail(c *gin.Context, start time.Time, err error) {
	status := apperrors.ToHTTPStatus(err)
	if status < http.StatusInternalServerError {
		metrics.ObserveIngest(time.Since(start), "rejected")
		h.logger.WarnwCtx(c.Request.Context(), "Validation failed", "error", err)
	} else {
		metrics.ObserveIngest(time.Since(start), "error")
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to ingest lead", "error", err)
	}
	c.JSON(status, apperrors.ToErrorResponse(err))
}
