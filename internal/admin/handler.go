// Package admin exposes operator endpoints over the pipeline state: dead
// letters, stored lead records, notification outcomes and queue depth.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/internal/notification"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

type Handler struct {
	queue   scheduler.Queue
	leads   *storage.LeadStore
	records notification.RecordStore
	logger  logger.Logger
}

// NewHandler builds the admin API. records may be nil when no notification
// record store is configured.
func NewHandler(queue scheduler.Queue, leads *storage.LeadStore, records notification.RecordStore, log logger.Logger) *Handler {
	return &Handler{queue: queue, leads: leads, records: records, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		dead := v1.Group("/dead-letters")
		{
			dead.GET("", h.ListDeadLetters)
			dead.POST("/:lead_id/requeue", h.RequeueDeadLetter)
		}

		leads := v1.Group("/leads/:lead_id")
		{
			leads.GET("", h.GetEnrichedLead)
			leads.GET("/raw", h.GetRawLead)
			leads.GET("/notifications", h.ListNotifications)
		}

		v1.GET("/queue/stats", h.QueueStats)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := apperrors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, apperrors.ToErrorResponse(err))
}

type DeadLettersResponse struct {
	Items []*models.DeliveryTask `json:"items"`
	Count int                    `json:"count"`
}

// ListDeadLetters godoc
// @Summary      List dead-lettered delivery tasks
// @Description  Most recently dead-lettered first
// @Tags         dead-letters
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of items"  default(100)
// @Success      200    {object}  DeadLettersResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      500    {object}  errors.ErrorResponse
// @Router       /dead-letters [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	limit := constants.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > constants.MaxLimit {
			h.handleError(c, apperrors.Validation("limit must be between 1 and %d", constants.MaxLimit))
			return
		}
		limit = n
	}

	tasks, err := h.queue.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeadLettersResponse{Items: tasks, Count: len(tasks)})
}

// RequeueDeadLetter godoc
// @Summary      Requeue a dead-lettered task
// @Description  Makes the task visible immediately with a fresh attempt budget
// @Tags         dead-letters
// @Produce      json
// @Param        lead_id  path  string  true  "Lead ID"
// @Success      202
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /dead-letters/{lead_id}/requeue [post]
func (h *Handler) RequeueDeadLetter(c *gin.Context) {
	leadID := c.Param("lead_id")
	err := h.queue.Requeue(c.Request.Context(), leadID)
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		h.handleError(c, apperrors.ErrNotFound.WithMessage("no dead letter for lead %s", leadID))
		return
	}
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.logger.InfowCtx(c.Request.Context(), "Dead letter requeued", "lead_id", leadID)
	c.Status(http.StatusAccepted)
}

// GetEnrichedLead godoc
// @Summary      Get the enriched lead record
// @Tags         leads
// @Produce      json
// @Param        lead_id  path      string  true  "Lead ID"
// @Success      200      {object}  map[string]interface{}
// @Failure      404      {object}  errors.ErrorResponse
// @Router       /leads/{lead_id} [get]
func (h *Handler) GetEnrichedLead(c *gin.Context) {
	lead, err := h.leads.GetEnriched(c.Request.Context(), c.Param("lead_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// GetRawLead godoc
// @Summary      Get the raw lead event
// @Tags         leads
// @Produce      json
// @Param        lead_id  path      string  true  "Lead ID"
// @Success      200      {object}  models.LeadEvent
// @Failure      404      {object}  errors.ErrorResponse
// @Router       /leads/{lead_id}/raw [get]
func (h *Handler) GetRawLead(c *gin.Context) {
	event, err := h.leads.GetRaw(c.Request.Context(), c.Param("lead_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// ListNotifications godoc
// @Summary      List notification outcomes for a lead
// @Tags         leads
// @Produce      json
// @Param        lead_id  path      string  true  "Lead ID"
// @Success      200      {array}   models.NotificationRecord
// @Failure      503      {object}  errors.ErrorResponse
// @Router       /leads/{lead_id}/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	if h.records == nil {
		h.handleError(c, apperrors.ErrServiceUnavailable.WithMessage("notification record store is not configured"))
		return
	}
	records, err := h.records.List(c.Request.Context(), c.Param("lead_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if records == nil {
		records = []models.NotificationRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// QueueStats godoc
// @Summary      Delivery task counts per state
// @Tags         queue
// @Produce      json
// @Success      200  {object}  scheduler.Stats
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /queue/stats [get]
func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
