package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/service"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
	"github.com/noah-isme/edu-records-api/pkg/response"
)

// PolicyHandler exposes visibility policy administration endpoints.
type PolicyHandler struct {
	service *service.PolicyService
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(svc *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{service: svc}
}

// List godoc
// @Summary List visibility policies
// @Tags Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, nil)
}

// Get godoc
// @Summary Get policy for a role
// @Tags Policies
// @Produce json
// @Param role path string true "Role"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/policies/{role} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.service.Get(c.Request.Context(), models.UserRole(c.Param("role")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Upsert godoc
// @Summary Create or patch a role policy
// @Description Patches only the flags present in the payload; absent roles start from deny-all
// @Tags Policies
// @Accept json
// @Produce json
// @Param payload body models.UpsertVisibilityPolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/policies [put]
func (h *PolicyHandler) Upsert(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpsertVisibilityPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}

	policy, err := h.service.Upsert(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, policy, nil)
}

// Delete godoc
// @Summary Delete a role policy
// @Description Removing a policy returns the role to deny-all
// @Tags Policies
// @Produce json
// @Param role path string true "Role"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/policies/{role} [delete]
func (h *PolicyHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), models.UserRole(c.Param("role")), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
