package gateway

import (
	"net/http"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/gin-gonic/gin"
)

type rangeQuery struct {
	StartDate   string `form:"startDate"`
	EndDate     string `form:"endDate"`
	SiteID      int64  `form:"siteId" binding:"min=0"`
	Aggregation string `form:"aggregation"`
	Currency    string `form:"currency"`
}

func bindRange(c *gin.Context) (apiclient.RangeParams, bool) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid query parameters", err)
		return apiclient.RangeParams{}, false
	}
	return apiclient.RangeParams{
		StartDate:   q.StartDate,
		EndDate:     q.EndDate,
		SiteID:      q.SiteID,
		Aggregation: q.Aggregation,
		Currency:    q.Currency,
	}, true
}

// HandleDashboard handles GET /v1/analytics/dashboard
// Query parameters: hoursBack, siteId, refresh
func (h *Handler) HandleDashboard(c *gin.Context) {
	var query struct {
		HoursBack int   `form:"hoursBack"`
		SiteID    int64 `form:"siteId" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid query parameters", err)
		return
	}
	params := apiclient.DashboardParams{HoursBack: query.HoursBack, SiteID: query.SiteID}
	if err := params.Validate(); err != nil {
		respondError(c, err, "Invalid dashboard query")
		return
	}

	resp, err := h.api.Dashboard(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to load dashboard")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleEnergy handles GET /v1/analytics/energy
// Query parameters: startDate, endDate, siteId, aggregation, refresh
func (h *Handler) HandleEnergy(c *gin.Context) {
	params, ok := bindRange(c)
	if !ok {
		return
	}
	if err := params.ValidateEnergy(); err != nil {
		respondError(c, err, "Invalid energy query")
		return
	}
	resp, err := h.api.EnergyConsumption(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to load energy consumption")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCarbon handles GET /v1/analytics/carbon
// Query parameters: startDate, endDate, siteId, aggregation, refresh
func (h *Handler) HandleCarbon(c *gin.Context) {
	params, ok := bindRange(c)
	if !ok {
		return
	}
	if err := params.ValidateCarbon(); err != nil {
		respondError(c, err, "Invalid carbon query")
		return
	}
	resp, err := h.api.CarbonFootprint(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to load carbon footprint")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFinancial handles GET /v1/analytics/financial
// Query parameters: startDate, endDate, siteId, currency, refresh
func (h *Handler) HandleFinancial(c *gin.Context) {
	params, ok := h.financialParams(c)
	if !ok {
		return
	}
	resp, err := h.api.FinancialMetrics(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to load financial metrics")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) financialParams(c *gin.Context) (apiclient.RangeParams, bool) {
	params, ok := bindRange(c)
	if !ok {
		return params, false
	}
	if err := params.ValidateFinancial(); err != nil {
		respondError(c, err, "Invalid financial query")
		return params, false
	}
	return params, true
}
