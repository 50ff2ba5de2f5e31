package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/service"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
	"github.com/noah-isme/edu-records-api/pkg/response"
)

// MarkHandler handles exam mark endpoints.
type MarkHandler struct {
	service *service.MarkService
}

// NewMarkHandler creates a new mark handler.
func NewMarkHandler(svc *service.MarkService) *MarkHandler {
	return &MarkHandler{service: svc}
}

// List godoc
// @Summary List marks
// @Description List marks scoped to the caller's role
// @Tags Marks
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param student_id query string false "Student filter"
// @Param subject_id query string false "Subject filter"
// @Param exam_type query string false "Exam type filter"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	var filter models.MarkFilter
	filter.Page = queryInt(c, "page", 1)
	filter.PageSize = queryInt(c, "page_size", 20)
	filter.StudentID = c.Query("student_id")
	filter.SubjectID = c.Query("subject_id")
	filter.Department = c.Query("department")
	filter.ExamType = c.Query("exam_type")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	marks, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, marks, pagination)
}

// Create godoc
// @Summary Record marks
// @Description Record a score for a student in one assessment
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body models.CreateMarkRequest true "Mark payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculty/marks [post]
func (h *MarkHandler) Create(c *gin.Context) {
	var req models.CreateMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}

	mark, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, mark)
}

// Update godoc
// @Summary Update mark
// @Description Patch a mark; grader or admin only
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Mark ID"
// @Param payload body models.UpdateMarkRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculty/marks/{id} [put]
func (h *MarkHandler) Update(c *gin.Context) {
	var req models.UpdateMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patch payload"))
		return
	}

	mark, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, mark, nil)
}

// Delete godoc
// @Summary Delete mark
// @Tags Marks
// @Produce json
// @Param id path string true "Mark ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculty/marks/{id} [delete]
func (h *MarkHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
