// Queue HTTP handlers.
//
// This file exposes REST endpoints for the peer-finder queue:
//   - POST /queue                (join the queue)
//   - POST /records/{id}/match   (run a matching pass for a record)
//   - GET  /records/{id}         (match status lookup)
//   - POST /records/{id}/unpair  (anonymize a record or its whole group)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
	"github.com/tbourn/go-peerfinder-backend/internal/services"
	"github.com/tbourn/go-peerfinder-backend/internal/store"
)

//
// Service contracts (context-aware)
//

// QueueService defines the queue operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type QueueService interface {
	// Join validates and enrolls a participant; duplicate submissions
	// return the existing record.
	Join(ctx context.Context, req services.JoinRequest) (*services.JoinResult, error)
	// AttemptMatch runs a matching pass for the record.
	AttemptMatch(ctx context.Context, id string) (*services.MatchResult, error)
	// Status returns the record and its match state without mutating
	// the queue.
	Status(ctx context.Context, id string) (*services.StatusResult, error)
	// Unpair anonymizes a record (and its group) with the given reason,
	// returning how many records were touched.
	Unpair(ctx context.Context, id, reason string) (int, error)
	// RunFallbackPass groups long-waiting seekers by size only.
	RunFallbackPass(ctx context.Context) (int, error)
	// ExportAll returns the full queue snapshot.
	ExportAll(ctx context.Context) ([]domain.Record, error)
	// ListPage returns a page of records and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Record, int, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for queue and admin operations.
// It depends on an abstract service interface to keep transport concerns
// separate from business logic.
type Handlers struct {
	svc QueueService
}

// New constructs a Handlers instance bound to the given service.
func New(svc QueueService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// JoinQueueRequest is the JSON payload for joining the queue.
type JoinQueueRequest struct {
	Name                string `json:"name" binding:"required" example:"Maria Papadaki"`
	Phone               string `json:"phone" binding:"required" example:"+306912345678"`
	Email               string `json:"email" binding:"required" example:"maria@example.org"`
	Country             string `json:"country" binding:"required" example:"Greece"`
	Language            string `json:"language" binding:"required" example:"English"`
	Cohort              string `json:"cohort" binding:"required" example:"2026-spring"`
	TopicModule         string `json:"topic_module" binding:"required" example:"Module 3"`
	LearningPreferences string `json:"learning_preferences" binding:"required" example:"Visual"`
	Availability        string `json:"availability" binding:"required" example:"Weekday evenings"`
	PreferredStudySetup string `json:"preferred_study_setup" example:"3"`
	KindOfSupport       string `json:"kind_of_support" example:"Accountability"`
	ConnectionType      string `json:"connection_type" binding:"required" example:"find"`
}

// JoinQueueResponse reports the outcome of an enrollment.
type JoinQueueResponse struct {
	ID       string          `json:"id"`
	Existing bool            `json:"existing"`
	Matched  bool            `json:"matched"`
	GroupID  string          `json:"group_id,omitempty"`
	Members  []domain.Record `json:"members,omitempty"`
}

// MatchStatusResponse reports a record's current match state.
type MatchStatusResponse struct {
	Matched bool            `json:"matched"`
	GroupID string          `json:"group_id,omitempty"`
	Members []domain.Record `json:"members,omitempty"`
}

// RecordStatusResponse carries the full record alongside its match state,
// so an unmatched caller still sees what they submitted.
type RecordStatusResponse struct {
	Record  domain.Record   `json:"record"`
	Matched bool            `json:"matched"`
	GroupID string          `json:"group_id,omitempty"`
	Members []domain.Record `json:"members,omitempty"`
}

// UnpairRequest carries the unpair reason.
type UnpairRequest struct {
	Reason string `json:"reason" binding:"required" example:"partner unresponsive"`
}

// UnpairResponse reports how many records were anonymized.
type UnpairResponse struct {
	Unpaired int `json:"unpaired"`
}

//
// Helpers
//

// mapServiceError translates service-layer errors into HTTP responses,
// using fallbackCode for unexpected failures.
func mapServiceError(c *gin.Context, err error, fallbackCode string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, ve.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "record not found")
	case errors.Is(err, store.ErrContention):
		fail(c, http.StatusConflict, ErrCodeConflict, "queue is busy, retry the request")
	case errors.Is(err, store.ErrUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "queue storage unavailable")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

func matchStatusBody(res *services.MatchResult) MatchStatusResponse {
	return MatchStatusResponse{Matched: res.Matched, GroupID: res.GroupID, Members: res.Members}
}

//
// Handlers
//

// JoinQueue godoc
// @ID          joinQueue
// @Summary     Join the peer-finder queue
// @Description Enrolls a participant. Resubmitting the same details returns the existing record instead of creating a second one.
// @Tags        Queue
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.JoinQueueRequest  true  "Enrollment payload"
//
// @Success     201  {object}  handlers.JoinQueueResponse  "New record created"
// @Success     200  {object}  handlers.JoinQueueResponse  "Existing record returned"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     409  {object}  handlers.ErrorResponse  "Too much write contention"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /queue [post]
func (h *Handlers) JoinQueue(c *gin.Context) {
	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Join(c.Request.Context(), services.JoinRequest{
		Name:                req.Name,
		Phone:               req.Phone,
		Email:               req.Email,
		Country:             req.Country,
		Language:            req.Language,
		Cohort:              req.Cohort,
		TopicModule:         req.TopicModule,
		LearningPreferences: req.LearningPreferences,
		Availability:        req.Availability,
		PreferredStudySetup: req.PreferredStudySetup,
		KindOfSupport:       req.KindOfSupport,
		ConnectionType:      req.ConnectionType,
	})
	if err != nil {
		mapServiceError(c, err, ErrCodeJoinFailed)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	ok(c, status, JoinQueueResponse{
		ID:       res.ID,
		Existing: res.Existing,
		Matched:  res.Matched,
		GroupID:  res.GroupID,
		Members:  res.Members,
	})
}

// MatchRecord godoc
// @ID          matchRecord
// @Summary     Run a matching pass for a record
// @Description Attempts to match the record with waiting peers. Group seekers may cause several groups to form in one pass. Safe to call repeatedly.
// @Tags        Queue
// @Produce     json
//
// @Param       id  path  string  true  "Record ID"
//
// @Success     200  {object}  handlers.MatchStatusResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Too much write contention"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /records/{id}/match [post]
func (h *Handlers) MatchRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id required")
		return
	}

	res, err := h.svc.AttemptMatch(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err, ErrCodeMatchFailed)
		return
	}
	ok(c, http.StatusOK, matchStatusBody(res))
}

// RecordStatus godoc
// @ID          recordStatus
// @Summary     Look up a record's match status
// @Description Returns the record with its match state and, when matched, the group roster. Never mutates the queue.
// @Tags        Queue
// @Produce     json
//
// @Param       id  path  string  true  "Record ID"
//
// @Success     200  {object}  handlers.RecordStatusResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /records/{id} [get]
func (h *Handlers) RecordStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id required")
		return
	}

	res, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, RecordStatusResponse{
		Record:  res.Record,
		Matched: res.Matched,
		GroupID: res.GroupID,
		Members: res.Members,
	})
}

// UnpairRecord godoc
// @ID          unpairRecord
// @Summary     Unpair and anonymize a record
// @Description Overwrites the record's personal data with an anonymized marker, recording the reason. Matched records take their whole group with them.
// @Tags        Queue
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                  true  "Record ID"
// @Param       body  body  handlers.UnpairRequest  true  "Unpair reason"
//
// @Success     200  {object}  handlers.UnpairResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing reason"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Too much write contention"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /records/{id}/unpair [post]
func (h *Handlers) UnpairRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record id required")
		return
	}

	var req UnpairRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason required")
		return
	}

	n, err := h.svc.Unpair(c.Request.Context(), id, req.Reason)
	if err != nil {
		mapServiceError(c, err, ErrCodeUnpairFailed)
		return
	}
	ok(c, http.StatusOK, UnpairResponse{Unpaired: n})
}
