// Migration journal HTTP handlers.
//
// This file exposes read-only endpoints over the in-process journal:
//   - GET /migrations          (list, paginated, most recent first)
//   - GET /migrations/active   (the migration holding the single-flight guard)
//   - GET /migrations/{id}     (one journal record by run id)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/mvthread/internal/domain"
	"github.com/tbourn/mvthread/internal/services"
	"github.com/tbourn/mvthread/internal/utils"
)

// JournalService lists recorded migrations.
type JournalService interface {
	// ListPage returns a page of journal records and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.MigrationRecord, int64, error)
	// Get returns one record, or services.ErrMigrationNotFound.
	Get(ctx context.Context, runID string) (*domain.MigrationRecord, error)
}

// ActiveSource reports the migration currently running, if any.
type ActiveSource interface {
	Active() (domain.ActiveMigration, bool)
}

// Handlers groups the ops endpoints.
type Handlers struct {
	journal JournalService
	active  ActiveSource
}

// New constructs Handlers bound to the journal and the guard.
func New(journal JournalService, active ActiveSource) *Handlers {
	return &Handlers{journal: journal, active: active}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMigrationsResponse wraps a page of journal records.
type ListMigrationsResponse struct {
	Migrations []domain.MigrationRecord `json:"migrations"`
	Pagination Pagination               `json:"pagination"`
}

// ActiveMigrationResponse reports whether a migration is running.
type ActiveMigrationResponse struct {
	Active    bool                    `json:"active"`
	Migration *domain.ActiveMigration `json:"migration,omitempty"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// ListMigrations godoc
// @ID          listMigrations
// @Summary     List recorded migrations
// @Description Returns finished migrations of this process, most recent first.
// @Tags        Migrations
// @Produce     json
//
// @Param       page       query  int  false  "Page number (1-based)"   minimum(1)  default(1)
// @Param       page_size  query  int  false  "Items per page"          minimum(1)  maximum(100)  default(20)
//
// @Success     200  {object}  handlers.ListMigrationsResponse  "Page of journal records"
// @Failure     500  {object}  handlers.ErrorResponse           "Journal unavailable"
// @Router      /migrations [get]
func (h *Handlers) ListMigrations(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.journal.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMigrationsResponse{
		Migrations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ActiveMigration godoc
// @ID          activeMigration
// @Summary     Show the running migration
// @Description Reports whether a migration holds the single-flight guard, and which one.
// @Tags        Migrations
// @Produce     json
// @Success     200  {object}  handlers.ActiveMigrationResponse
// @Router      /migrations/active [get]
func (h *Handlers) ActiveMigration(c *gin.Context) {
	a, running := h.active.Active()
	if !running {
		ok(c, http.StatusOK, ActiveMigrationResponse{Active: false})
		return
	}
	ok(c, http.StatusOK, ActiveMigrationResponse{Active: true, Migration: &a})
}

// GetMigration godoc
// @ID          getMigration
// @Summary     Get one recorded migration
// @Tags        Migrations
// @Produce     json
//
// @Param       id  path  string  true  "Run ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.MigrationRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed run id"
// @Failure     404  {object}  handlers.ErrorResponse  "Migration not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /migrations/{id} [get]
func (h *Handlers) GetMigration(c *gin.Context) {
	runID := c.Param("id")
	if _, err := uuid.Parse(runID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "run id must be a UUID")
		return
	}

	rec, err := h.journal.Get(c.Request.Context(), runID)
	switch {
	case errors.Is(err, services.ErrMigrationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "migration not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, rec)
	}
}
