// Admin HTTP handlers.
//
// This file exposes operator-only endpoints, guarded by token middleware in
// the router:
//   - POST /admin/fallback   (run the relaxed fallback matching sweep)
//   - GET  /admin/export     (download the queue as CSV)
//   - GET  /admin/records    (paginated queue overview)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
	"github.com/tbourn/go-peerfinder-backend/internal/store"
	"github.com/tbourn/go-peerfinder-backend/internal/utils"
)

//
// DTOs
//

// FallbackResponse reports how many groups a fallback sweep formed.
type FallbackResponse struct {
	GroupsFormed int `json:"groups_formed"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListRecordsResponse wraps a page of queue records and pagination info.
type ListRecordsResponse struct {
	Records    []domain.Record `json:"records"`
	Pagination Pagination      `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

//
// Handlers
//

// RunFallback godoc
// @ID          runFallback
// @Summary     Run the fallback matching sweep
// @Description Groups participants who have waited past the configured period by requested group size only, ignoring the usual filters.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
//
// @Success     200  {object}  handlers.FallbackResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     409  {object}  handlers.ErrorResponse  "Too much write contention"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /admin/fallback [post]
func (h *Handlers) RunFallback(c *gin.Context) {
	formed, err := h.svc.RunFallbackPass(c.Request.Context())
	if err != nil {
		mapServiceError(c, err, ErrCodeMatchFailed)
		return
	}
	ok(c, http.StatusOK, FallbackResponse{GroupsFormed: formed})
}

// ExportQueue godoc
// @ID          exportQueue
// @Summary     Download the queue as CSV
// @Description Streams the full queue snapshot as a CSV attachment in the canonical column order.
// @Tags        Admin
// @Produce     text/csv
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
//
// @Success     200  {string}  string  "CSV payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /admin/export [get]
func (h *Handlers) ExportQueue(c *gin.Context) {
	recs, err := h.svc.ExportAll(c.Request.Context())
	if err != nil {
		mapServiceError(c, err, ErrCodeExportFailed)
		return
	}
	data, err := store.Encode(recs)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	filename := "queue-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// ListRecords godoc
// @ID          listRecords
// @Summary     List queue records (paginated)
// @Description Returns a page of queue records in insertion order.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListRecordsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /admin/records [get]
func (h *Handlers) ListRecords(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.svc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		mapServiceError(c, err, ErrCodeListFailed)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	ok(c, http.StatusOK, ListRecordsResponse{
		Records: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
