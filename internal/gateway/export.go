package gateway

import (
	"net/http"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/observability/metrics"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/report"
	"github.com/gin-gonic/gin"
)

// HandleFinancialExport handles GET /v1/analytics/financial/export
// Query parameters: startDate, endDate, siteId, currency, refresh
func (h *Handler) HandleFinancialExport(c *gin.Context) {
	params, ok := h.financialParams(c)
	if !ok {
		return
	}
	resp, err := h.api.FinancialMetrics(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to load financial metrics")
		return
	}

	raw, err := report.FinancialXLSX(resp, params.Currency)
	metrics.ObserveExport("xlsx", err)
	if err != nil {
		respondError(c, err, "Failed to render export")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.FinancialFilename(params.StartDate, params.EndDate)+`"`)
	c.Data(http.StatusOK, report.ContentTypeXLSX, raw)
}
