package handler

import (
	"context"
	"net/http"

	"github.com/cortexai/coursebot/internal/models"
)

// CatalogStats is the analytics surface of rag.System.
type CatalogStats interface {
	CourseAnalytics(ctx context.Context) (models.CourseStats, error)
}

// CoursesHandler handles GET /api/courses
type CoursesHandler struct {
	stats CatalogStats
}

func NewCoursesHandler(stats CatalogStats) *CoursesHandler {
	return &CoursesHandler{stats: stats}
}

func (h *CoursesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.CourseAnalytics(r.Context())
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, stats)
}
