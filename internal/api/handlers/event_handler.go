package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/repositories"
	"example.com/venuehub/services/events/internal/services"
	"example.com/venuehub/services/events/internal/tracing"
)

// EventHandler maps the lifecycle operations 1:1 onto REST endpoints. It only
// binds payloads and translates errors; all workflow rules live in the
// service.
type EventHandler struct {
	eventService *services.EventService
	tracer       tracing.Tracer
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService *services.EventService, tracer tracing.Tracer) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		tracer:       tracer,
	}
}

// CreateEventRequest is the payload for a new draft event.
type CreateEventRequest struct {
	EventID       string     `json:"eventId"`
	Title         string     `json:"title" binding:"required"`
	Description   string     `json:"description"`
	StartTime     *time.Time `json:"startTime"`
	EndTime       *time.Time `json:"endTime"`
	Locations     []string   `json:"locations"`
	Categories    []string   `json:"categories"`
	Capacity      int        `json:"capacity"`
	CalendarOwner string     `json:"calendarOwner"`
	CalendarID    string     `json:"calendarId"`
}

// TransitionRequest carries the optimistic-concurrency token and an optional
// reason for transitions that require one.
type TransitionRequest struct {
	ExpectedVersion int64  `json:"expectedVersion"`
	Reason          string `json:"reason"`
}

// ChangeRequest carries a field-level change set plus the concurrency token.
type ChangeRequest struct {
	ExpectedVersion int64            `json:"expectedVersion"`
	Reason          string           `json:"reason"`
	Changes         models.ChangeSet `json:"changes"`
}

// HandleCreate creates a new draft event.
func (h *EventHandler) HandleCreate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-event")
	defer h.tracer.EndTransaction(txn)

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.AddAttribute(txn, "title", req.Title)

	record, err := h.eventService.Create(c.Request.Context(), actorFrom(c), services.CreateEventInput{
		EventID:       req.EventID,
		Title:         req.Title,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Locations:     req.Locations,
		Categories:    req.Categories,
		Capacity:      req.Capacity,
		CalendarOwner: req.CalendarOwner,
		CalendarID:    req.CalendarID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// HandleGet returns a single event record.
func (h *EventHandler) HandleGet(c *gin.Context) {
	record, err := h.eventService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleList returns a page of event records.
func (h *EventHandler) HandleList(c *gin.Context) {
	opts := repositories.ListOptions{
		Limit:          queryInt(c, "limit", 50),
		Offset:         queryInt(c, "offset", 0),
		IncludeDeleted: c.Query("include_deleted") == "true",
		CreatedBy:      c.Query("created_by"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.EventStatus(raw)
		opts.Status = &status
	}

	records, err := h.eventService.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": records, "count": len(records)})
}

// HandleUpdate applies a direct edit under the concurrency guard.
func (h *EventHandler) HandleUpdate(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.eventService.Update(c.Request.Context(), c.Param("id"), actorFrom(c), req.Changes, req.ExpectedVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleSubmit moves a draft into review.
func (h *EventHandler) HandleSubmit(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.Submit(c.Request.Context(), c.Param("id"), actor, req.ExpectedVersion)
	})
}

// HandleApprove publishes a pending event.
func (h *EventHandler) HandleApprove(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.Approve(c.Request.Context(), c.Param("id"), actor, req.ExpectedVersion)
	})
}

// HandleReject declines a pending event.
func (h *EventHandler) HandleReject(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason, req.ExpectedVersion)
	})
}

// HandleDelete logically deletes an event.
func (h *EventHandler) HandleDelete(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.Delete(c.Request.Context(), c.Param("id"), actor, req.Reason, req.ExpectedVersion)
	})
}

// HandleRestore brings a deleted event back to its prior status.
func (h *EventHandler) HandleRestore(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.Restore(c.Request.Context(), c.Param("id"), actor, req.ExpectedVersion)
	})
}

// HandleRequestEdit attaches an edit request to a published event.
func (h *EventHandler) HandleRequestEdit(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.eventService.RequestEdit(c.Request.Context(), c.Param("id"), actorFrom(c), req.Changes, req.Reason, req.ExpectedVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleApproveEdit applies a pending edit request with optional approver
// overrides.
func (h *EventHandler) HandleApproveEdit(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.eventService.ApproveEdit(c.Request.Context(), c.Param("id"), actorFrom(c), req.Changes, req.ExpectedVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// HandleRejectEdit discards a pending edit request.
func (h *EventHandler) HandleRejectEdit(c *gin.Context) {
	h.transition(c, func(req TransitionRequest, actor models.Actor) (*models.EventRecord, error) {
		return h.eventService.RejectEdit(c.Request.Context(), c.Param("id"), actor, req.Reason, req.ExpectedVersion)
	})
}

// HandleAuditTrail returns an event's audit entries.
func (h *EventHandler) HandleAuditTrail(c *gin.Context) {
	entries, err := h.eventService.AuditTrail(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// RegisterRoutes registers the handler's routes
func (h *EventHandler) RegisterRoutes(router *gin.Engine) {
	events := router.Group("/events")
	{
		events.POST("", h.HandleCreate)
		events.GET("", h.HandleList)
		events.GET("/:id", h.HandleGet)
		events.PATCH("/:id", h.HandleUpdate)
		events.DELETE("/:id", h.HandleDelete)
		events.POST("/:id/submit", h.HandleSubmit)
		events.POST("/:id/approve", h.HandleApprove)
		events.POST("/:id/reject", h.HandleReject)
		events.POST("/:id/restore", h.HandleRestore)
		events.POST("/:id/edit-request", h.HandleRequestEdit)
		events.POST("/:id/edit-request/approve", h.HandleApproveEdit)
		events.POST("/:id/edit-request/reject", h.HandleRejectEdit)
		events.GET("/:id/audit", h.HandleAuditTrail)
	}
}

func (h *EventHandler) transition(c *gin.Context, apply func(TransitionRequest, models.Actor) (*models.EventRecord, error)) {
	var req TransitionRequest
	// An absent body means an unguarded legacy call (expectedVersion 0).
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := apply(req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// actorFrom reads the actor identity propagated by the upstream auth gateway.
func actorFrom(c *gin.Context) models.Actor {
	return models.Actor{
		ID:             c.GetHeader("X-Actor-Id"),
		Email:          c.GetHeader("X-Actor-Email"),
		Name:           c.GetHeader("X-Actor-Name"),
		DelegatedToken: strings.TrimPrefix(c.GetHeader("X-Calendar-Token"), "Bearer "),
	}
}

// respondError maps the typed workflow errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		conflict          *repositories.VersionConflictError
		invalidTransition *services.InvalidTransitionError
		validation        *services.ValidationError
		permission        *services.PermissionDeniedError
	)

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "version conflict",
			"currentVersion": conflict.CurrentVersion,
			"currentStatus":  conflict.CurrentStatus,
			"snapshot":       conflict.Snapshot,
		})
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidTransition.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &permission):
		c.JSON(http.StatusForbidden, gin.H{"error": permission.Error()})
	default:
		log.Error().Err(err).Msg("Unhandled error in event handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
