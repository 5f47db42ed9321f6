package handler

import (
	"net/http"

	"sourcedpos/internal/dto"
	"sourcedpos/internal/middleware"
	"sourcedpos/internal/service"

	"github.com/gin-gonic/gin"
)

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler { return &SalesHandler{svc: svc} }

// Quote godoc
// @Summary      Price a cart
// @Description  Runs the pricing calculator on a cart without writing anything.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.QuoteRequest true "Cart"
// @Success      200  {object} dto.QuoteResponse
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/sales/quote [post]
func (h *SalesHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Quote(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Commit godoc
// @Summary      Commit a sale
// @Description  Records the sale, its lines, trade-ins and consignment settlements and decrements stock in one transaction.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CommitSaleRequest true "Sale"
// @Success      201  {object} dto.SaleResponse
// @Failure      403  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/sales [post]
func (h *SalesHandler) Commit(c *gin.Context) {
	var req dto.CommitSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	if req.LocationID == nil {
		req.LocationID = claims.LocationID
	}
	resp, err := h.svc.Commit(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List sales
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        from        query string false "YYYY-MM-DD"
// @Param        to          query string false "YYYY-MM-DD"
// @Param        staff_id    query string false "Staff member"
// @Param        location_id query int    false "Location"
// @Param        voided      query string false "false | true | all"
// @Param        page        query int    false "Page (default 1)"
// @Param        limit       query int    false "Page size (default 50)"
// @Success      200 {object} dto.SaleListResponse
// @Router       /v1/sales [get]
func (h *SalesHandler) List(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Summary godoc
// @Summary      Active-sale totals
// @Description  Aggregates non-voided sales. The voided filter is ignored.
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        from query string false "YYYY-MM-DD"
// @Param        to   query string false "YYYY-MM-DD"
// @Success      200 {object} dto.SaleSummaryResponse
// @Router       /v1/sales/summary [get]
func (h *SalesHandler) Summary(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.Summary(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a sale
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Sale ID"
// @Success      200 {object} dto.SaleResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/sales/{id} [get]
func (h *SalesHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Edit godoc
// @Summary      Edit sale lines
// @Description  Changes quantity, price or discount of committed lines. Stale versions are rejected with 409.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path int                 true "Sale ID"
// @Param        body body dto.EditSaleRequest true "Proposed lines"
// @Success      200  {object} dto.EditSaleResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/sales/{id} [patch]
func (h *SalesHandler) Edit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.EditSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Edit(c.Request.Context(), middleware.GetClaims(c).Actor(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Void godoc
// @Summary      Void a sale
// @Description  Marks the sale voided, restores stock and reverses the cash inflow. Irreversible.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path int                 true "Sale ID"
// @Param        body body dto.VoidSaleRequest true "Reason"
// @Success      200  {object} dto.SaleResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/sales/{id}/void [post]
func (h *SalesHandler) Void(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.VoidSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Void(c.Request.Context(), middleware.GetClaims(c).Actor(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddPartExchange godoc
// @Summary      Add a trade-in to a committed sale
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path int                        true "Sale ID"
// @Param        body body dto.AddPartExchangeRequest true "Trade-in"
// @Success      201  {object} dto.SaleResponse
// @Router       /v1/sales/{id}/part-exchanges [post]
func (h *SalesHandler) AddPartExchange(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.AddPartExchangeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddPartExchange(c.Request.Context(), middleware.GetClaims(c).Actor(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
