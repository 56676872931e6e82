package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webupload/internal/services"
)

// Source supplies the data behind the HTTP routes.
type Source interface {
	Status(ctx context.Context) (DaemonStatus, error)
	StoredJob(ctx context.Context, id string) (StoredJob, error)
}

// NewRouter builds the read-only status API. The middleware guards every
// route except /api/health.
func NewRouter(src Source, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{src: src}
	router.GET("/api/health", h.health)

	protected := router.Group("/api")
	protected.Use(middleware...)
	protected.GET("/status", h.status)
	protected.GET("/jobs", h.jobs)
	protected.GET("/jobs/:id", h.job)
	return router
}

type handlers struct {
	src Source
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) status(c *gin.Context) {
	status, err := h.src.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) jobs(c *gin.Context) {
	status, err := h.src.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	jobs := status.Jobs
	if jobs == nil {
		jobs = []JobItem{}
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs})
}

func (h *handlers) job(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var resp JobDetailResponse
	status, err := h.src.Status(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	for i := range status.Jobs {
		if status.Jobs[i].ID == id {
			live := status.Jobs[i]
			resp.Live = &live
			break
		}
	}
	stored, err := h.src.StoredJob(ctx, id)
	switch {
	case err == nil:
		resp.Stored = &stored
	case errors.Is(err, services.ErrNotFound):
	default:
		writeError(c, err)
		return
	}
	if resp.Live == nil && resp.Stored == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "job " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		code = http.StatusBadRequest
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}
