package gateway

import (
	"net/http"
	"strconv"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/gin-gonic/gin"
)

type idURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

func bindID(c *gin.Context) (int64, bool) {
	var uri idURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid path parameters", err)
		return 0, false
	}
	return uri.ID, true
}

// HandleListSites handles GET /v1/sites
// Query parameters: page, size, sortBy, sortDir, search, refresh
func (h *Handler) HandleListSites(c *gin.Context) {
	var query struct {
		Page    int    `form:"page"`
		Size    int    `form:"size"`
		SortBy  string `form:"sortBy"`
		SortDir string `form:"sortDir"`
		Search  string `form:"search"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid query parameters", err)
		return
	}

	params := apiclient.SiteParams{
		Page:    query.Page,
		Size:    query.Size,
		SortBy:  query.SortBy,
		SortDir: query.SortDir,
		Search:  query.Search,
	}
	if err := params.Validate(); err != nil {
		respondError(c, err, "Invalid site query")
		return
	}

	sites, err := h.api.Sites(requestContext(c), params)
	if err != nil {
		respondError(c, err, "Failed to list sites")
		return
	}
	c.JSON(http.StatusOK, sites)
}

// HandleSiteOptions handles GET /v1/sites/options
func (h *Handler) HandleSiteOptions(c *gin.Context) {
	opts, err := h.api.SiteOptions(requestContext(c))
	if err != nil {
		respondError(c, err, "Failed to list site options")
		return
	}
	c.JSON(http.StatusOK, opts)
}

// HandleGetSite handles GET /v1/sites/:id
func (h *Handler) HandleGetSite(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	site, err := h.api.Site(requestContext(c), id)
	if err != nil {
		respondError(c, err, "Failed to load site")
		return
	}
	c.JSON(http.StatusOK, site)
}

// HandleSiteAnalytics handles GET /v1/sites/:id/analytics
// Every query parameter except refresh is forwarded upstream.
func (h *Handler) HandleSiteAnalytics(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if k == "refresh" || len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}
	out, err := h.api.SiteAnalytics(requestContext(c), id, params)
	if err != nil {
		respondError(c, err, "Failed to load site analytics")
		return
	}
	c.JSON(http.StatusOK, out)
}

// HandleListDevices handles GET /v1/devices
// Query parameters: siteId, type, refresh
func (h *Handler) HandleListDevices(c *gin.Context) {
	var query struct {
		SiteID int64  `form:"siteId" binding:"min=0"`
		Type   string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid query parameters", err)
		return
	}

	var (
		devices []apiclient.Device
		err     error
	)
	ctx := requestContext(c)
	if query.Type != "" {
		devices, err = h.api.DevicesByType(ctx, query.Type, query.SiteID)
	} else {
		devices, err = h.api.Devices(ctx, query.SiteID)
	}
	if err != nil {
		respondError(c, err, "Failed to list devices")
		return
	}
	c.JSON(http.StatusOK, devices)
}

// HandleGetDevice handles GET /v1/devices/:id
func (h *Handler) HandleGetDevice(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	d, err := h.api.Device(requestContext(c), id)
	if err != nil {
		respondError(c, err, "Failed to load device")
		return
	}
	c.JSON(http.StatusOK, d)
}

func siteKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
