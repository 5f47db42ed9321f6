package handler

import (
	"net/http"

	"sourcedpos/internal/dto"
	"sourcedpos/internal/middleware"
	"sourcedpos/internal/service"

	"github.com/gin-gonic/gin"
)

type CommissionHandler struct{ svc service.CommissionService }

func NewCommissionHandler(svc service.CommissionService) *CommissionHandler {
	return &CommissionHandler{svc: svc}
}

// ForSale godoc
// @Summary      Commission for one sale
// @Tags         commissions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Sale ID"
// @Success      200 {object} dto.CommissionResponse
// @Failure      409 {object} apierror.APIError "sale is voided"
// @Router       /v1/sales/{id}/commission [get]
func (h *CommissionHandler) ForSale(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ForSale(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SetOverride godoc
// @Summary      Override a sale's commission
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path int                           true "Sale ID"
// @Param        body body dto.CommissionOverrideRequest true "Amount and reason"
// @Success      200  {object} dto.CommissionResponse
// @Router       /v1/sales/{id}/commission-override [put]
func (h *CommissionHandler) SetOverride(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.CommissionOverrideRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SetOverride(c.Request.Context(), middleware.GetClaims(c).Actor(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClearOverride godoc
// @Summary      Remove a commission override
// @Tags         commissions
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Sale ID"
// @Success      200 {object} dto.CommissionResponse
// @Router       /v1/sales/{id}/commission-override [delete]
func (h *CommissionHandler) ClearOverride(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ClearOverride(c.Request.Context(), middleware.GetClaims(c).Actor(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StaffSummary godoc
// @Summary      Commission per staff member
// @Tags         commissions
// @Produce      json
// @Security     BearerAuth
// @Param        from query string false "YYYY-MM-DD"
// @Param        to   query string false "YYYY-MM-DD"
// @Success      200 {array} dto.StaffCommissionSummary
// @Router       /v1/commissions/summary [get]
func (h *CommissionHandler) StaffSummary(c *gin.Context) {
	var filter dto.CommissionFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.StaffSummary(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
