// Package gateway serves the dashboard data layer over HTTP.
package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/binding"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/gin-gonic/gin"
)

const (
	defaultOverviewWait = 5 * time.Second
	defaultKeepAlive    = 15 * time.Second
)

// DataAPI is the cached upstream read surface.
type DataAPI interface {
	SiteOptions(ctx context.Context) ([]apiclient.SiteOption, error)
	Sites(ctx context.Context, p apiclient.SiteParams) ([]apiclient.Site, error)
	Site(ctx context.Context, siteID int64) (apiclient.Site, error)
	SiteOverview(ctx context.Context, siteID int64) (apiclient.SiteOverview, error)
	Devices(ctx context.Context, siteID int64) ([]apiclient.Device, error)
	Device(ctx context.Context, deviceID int64) (apiclient.Device, error)
	DevicesByType(ctx context.Context, deviceType string, siteID int64) ([]apiclient.Device, error)
	Dashboard(ctx context.Context, p apiclient.DashboardParams) (apiclient.DashboardResponse, error)
	EnergyConsumption(ctx context.Context, p apiclient.RangeParams) (apiclient.EnergyConsumptionResponse, error)
	CarbonFootprint(ctx context.Context, p apiclient.RangeParams) (apiclient.CarbonFootprintResponse, error)
	FinancialMetrics(ctx context.Context, p apiclient.RangeParams) (apiclient.FinancialMetricsResponse, error)
	SiteAnalytics(ctx context.Context, siteID int64, params map[string]string) (map[string]any, error)
	Invalidate(pattern string) int
	ClearCache()
}

// SessionAPI logs the gateway in and out of the upstream.
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (auth.LoginResponse, error)
	Logout(ctx context.Context)
	CurrentUser(ctx context.Context) (auth.User, error)
	Authenticated() bool
}

// LiveSites resolves the live aggregate of a site. Watch keeps the site's
// feed open until release is called.
type LiveSites interface {
	Accumulator(ctx context.Context, siteID string) (*telemetry.Accumulator, error)
	Watch(ctx context.Context, siteID string) (acc *telemetry.Accumulator, release func(), err error)
}

// Deps are the collaborators of a Handler. Overviews, Tracker and Live are
// optional; the routes that need a missing one answer 503.
type Deps struct {
	API       DataAPI
	Session   SessionAPI
	Overviews *binding.Watchers[apiclient.SiteOverview]
	Tracker   *devicefeed.Tracker
	Live      LiveSites

	// OverviewWait bounds how long an overview request waits for a load
	// that is still in progress.
	OverviewWait time.Duration
	// KeepAlive is the interval of comment frames on idle event streams.
	KeepAlive time.Duration
}

type Handler struct {
	api          DataAPI
	session      SessionAPI
	overviews    *binding.Watchers[apiclient.SiteOverview]
	tracker      *devicefeed.Tracker
	live         LiveSites
	overviewWait time.Duration
	keepAlive    time.Duration
}

func New(d Deps) *Handler {
	if d.OverviewWait <= 0 {
		d.OverviewWait = defaultOverviewWait
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = defaultKeepAlive
	}
	return &Handler{
		api:          d.API,
		session:      d.Session,
		overviews:    d.Overviews,
		tracker:      d.Tracker,
		live:         d.Live,
		overviewWait: d.OverviewWait,
		keepAlive:    d.KeepAlive,
	}
}

// RegisterRoutes registers all gateway routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.GET("/sites", h.HandleListSites)
	v1.GET("/sites/options", h.HandleSiteOptions)
	v1.GET("/sites/:id", h.HandleGetSite)
	v1.GET("/sites/:id/overview", h.HandleSiteOverview)
	v1.GET("/sites/:id/analytics", h.HandleSiteAnalytics)

	v1.GET("/devices", h.HandleListDevices)
	v1.GET("/devices/:id", h.HandleGetDevice)

	analytics := v1.Group("/analytics")
	analytics.GET("/dashboard", h.HandleDashboard)
	analytics.GET("/energy", h.HandleEnergy)
	analytics.GET("/carbon", h.HandleCarbon)
	analytics.GET("/financial", h.HandleFinancial)
	analytics.GET("/financial/export", h.HandleFinancialExport)

	v1.GET("/ems/:site_id/state", h.HandleEMSState)
	v1.GET("/ems/:site_id/stream", h.HandleEMSStream)

	v1.POST("/cache/invalidate", h.HandleInvalidate)
	v1.DELETE("/cache", h.HandleClearCache)

	v1.POST("/session/login", h.HandleLogin)
	v1.POST("/session/logout", h.HandleLogout)
	v1.GET("/session", h.HandleSession)
}

// requestContext returns the request context, marked to bypass cached
// responses when the caller asked for ?refresh=true.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		return cache.ForceRefresh(ctx)
	}
	return ctx
}
