package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type resource struct {
	name string
	ttl  time.Duration
}

// Cache lifetimes per resource. Live data is kept briefly; reference data
// for minutes.
var (
	resSiteOptions   = resource{"site-options", 5 * time.Minute}
	resSiteOverview  = resource{"site-overview", 30 * time.Second}
	resSites         = resource{"sites", 5 * time.Minute}
	resSite          = resource{"site", 5 * time.Minute}
	resDevices       = resource{"devices", time.Minute}
	resDevice        = resource{"device", time.Minute}
	resDevicesByType = resource{"devices-type", time.Minute}
	resDashboard     = resource{"dashboard", 30 * time.Second}
	resEnergy        = resource{"energy-consumption", time.Minute}
	resCarbon        = resource{"carbon-footprint", 5 * time.Minute}
	resFinancial     = resource{"financial-metrics", 5 * time.Minute}
	resSiteAnalytics = resource{"site-analytics", time.Minute}
)

// ErrInvalidParams is wrapped by parameter validation failures.
var ErrInvalidParams = errors.New("invalid parameters")

func invalidParamsf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// SiteParams filters and pages GET /sites. Zero values are omitted.
type SiteParams struct {
	Page    int
	Size    int
	SortBy  string // name | location | capacity
	SortDir string // asc | desc
	Search  string
}

func (p SiteParams) Validate() error {
	switch p.SortBy {
	case "", "name", "location", "capacity":
	default:
		return invalidParamsf("sortBy must be one of name, location, capacity")
	}
	switch p.SortDir {
	case "", "asc", "desc":
	default:
		return invalidParamsf("sortDir must be asc or desc")
	}
	if p.Page < 0 || p.Size < 0 {
		return invalidParamsf("page and size must not be negative")
	}
	return nil
}

func (p SiteParams) values() map[string]any {
	m := map[string]any{}
	putInt(m, "page", int64(p.Page))
	putInt(m, "size", int64(p.Size))
	putString(m, "sortBy", p.SortBy)
	putString(m, "sortDir", p.SortDir)
	putString(m, "search", p.Search)
	return m
}

type DashboardParams struct {
	HoursBack int
	SiteID    int64
}

func (p DashboardParams) Validate() error {
	if p.HoursBack < 0 {
		return invalidParamsf("hoursBack must not be negative")
	}
	return nil
}

func (p DashboardParams) values() map[string]any {
	m := map[string]any{}
	putInt(m, "hoursBack", int64(p.HoursBack))
	putInt(m, "siteId", p.SiteID)
	return m
}

// RangeParams is the common shape of the analytics range queries.
// Aggregation applies to energy and carbon, Currency to financial metrics.
type RangeParams struct {
	StartDate   string
	EndDate     string
	SiteID      int64
	Aggregation string
	Currency    string
}

const dateLayout = "2006-01-02"

func (p RangeParams) validateDates() error {
	var start, end time.Time
	var err error
	if p.StartDate != "" {
		if start, err = parseDate(p.StartDate); err != nil {
			return invalidParamsf("startDate: %v", err)
		}
	}
	if p.EndDate != "" {
		if end, err = parseDate(p.EndDate); err != nil {
			return invalidParamsf("endDate: %v", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalidParamsf("endDate is before startDate")
	}
	return nil
}

// ValidateEnergy checks parameters for the energy consumption query.
func (p RangeParams) ValidateEnergy() error {
	switch p.Aggregation {
	case "", "HOURLY", "DAILY", "WEEKLY", "MONTHLY":
	default:
		return invalidParamsf("aggregation must be one of HOURLY, DAILY, WEEKLY, MONTHLY")
	}
	return p.validateDates()
}

// ValidateCarbon checks parameters for the carbon footprint query.
func (p RangeParams) ValidateCarbon() error {
	switch p.Aggregation {
	case "", "DAILY", "WEEKLY", "MONTHLY":
	default:
		return invalidParamsf("aggregation must be one of DAILY, WEEKLY, MONTHLY")
	}
	return p.validateDates()
}

// ValidateFinancial checks parameters for the financial metrics query.
func (p RangeParams) ValidateFinancial() error {
	if p.Currency != "" && len(p.Currency) != 3 {
		return invalidParamsf("currency must be a 3-letter code")
	}
	return p.validateDates()
}

func (p RangeParams) values(withAggregation, withCurrency bool) map[string]any {
	m := map[string]any{}
	putString(m, "startDate", p.StartDate)
	putString(m, "endDate", p.EndDate)
	putInt(m, "siteId", p.SiteID)
	if withAggregation {
		putString(m, "aggregation", p.Aggregation)
	}
	if withCurrency {
		putString(m, "currency", p.Currency)
	}
	return m
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SiteOptions lists every site as id/name pairs for selectors.
func (c *Client) SiteOptions(ctx context.Context) ([]SiteOption, error) {
	page, err := cachedGet[sitesPage](ctx, c, resSiteOptions, "/sites?size=100&sort=name,asc", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("site options: %w", err)
	}
	opts := make([]SiteOption, 0, len(page.Content))
	for _, s := range page.Content {
		opts = append(opts, SiteOption{ID: s.ID, Name: s.Name})
	}
	return opts, nil
}

// SiteOverview returns a site with its devices and their latest telemetry.
func (c *Client) SiteOverview(ctx context.Context, siteID int64) (SiteOverview, error) {
	ov, err := cachedGet[SiteOverview](ctx, c, resSiteOverview, "/sites/"+strconv.FormatInt(siteID, 10)+"/overview",
		map[string]any{"siteId": siteID}, nil)
	if err != nil {
		return SiteOverview{}, fmt.Errorf("site %d overview: %w", siteID, err)
	}
	return ov, nil
}

// Sites lists sites. The upstream answers either with a bare array or a
// paginated envelope; both are accepted.
func (c *Client) Sites(ctx context.Context, p SiteParams) ([]Site, error) {
	raw, err := cachedGet[json.RawMessage](ctx, c, resSites, "/sites", nil, p.values())
	if err != nil {
		return nil, fmt.Errorf("sites: %w", err)
	}

	var list []Site
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var page sitesPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("sites: %w: %w", ErrDecode, err)
	}
	if page.Content == nil {
		return []Site{}, nil
	}
	return page.Content, nil
}

// Site returns one site.
func (c *Client) Site(ctx context.Context, siteID int64) (Site, error) {
	s, err := cachedGet[Site](ctx, c, resSite, "/sites/"+strconv.FormatInt(siteID, 10),
		map[string]any{"siteId": siteID}, nil)
	if err != nil {
		return Site{}, fmt.Errorf("site %d: %w", siteID, err)
	}
	return s, nil
}

// Devices lists devices, optionally restricted to one site (siteID > 0).
func (c *Client) Devices(ctx context.Context, siteID int64) ([]Device, error) {
	q := map[string]any{}
	putInt(q, "siteId", siteID)
	d, err := cachedGet[[]Device](ctx, c, resDevices, "/devices", nil, q)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	return d, nil
}

// Device returns one device.
func (c *Client) Device(ctx context.Context, deviceID int64) (Device, error) {
	d, err := cachedGet[Device](ctx, c, resDevice, "/devices/"+strconv.FormatInt(deviceID, 10),
		map[string]any{"deviceId": deviceID}, nil)
	if err != nil {
		return Device{}, fmt.Errorf("device %d: %w", deviceID, err)
	}
	return d, nil
}

// DevicesByType lists devices of one type, optionally restricted to a site.
func (c *Client) DevicesByType(ctx context.Context, deviceType string, siteID int64) ([]Device, error) {
	if deviceType == "" {
		return nil, invalidParamsf("device type is required")
	}
	q := map[string]any{"type": deviceType}
	putInt(q, "siteId", siteID)
	d, err := cachedGet[[]Device](ctx, c, resDevicesByType, "/devices", nil, q)
	if err != nil {
		return nil, fmt.Errorf("devices of type %s: %w", deviceType, err)
	}
	return d, nil
}

// Dashboard returns the portfolio dashboard.
func (c *Client) Dashboard(ctx context.Context, p DashboardParams) (DashboardResponse, error) {
	d, err := cachedGet[DashboardResponse](ctx, c, resDashboard, "/analytics/dashboard", nil, p.values())
	if err != nil {
		return DashboardResponse{}, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

func (c *Client) EnergyConsumption(ctx context.Context, p RangeParams) (EnergyConsumptionResponse, error) {
	r, err := cachedGet[EnergyConsumptionResponse](ctx, c, resEnergy, "/analytics/energy/consumption", nil, p.values(true, false))
	if err != nil {
		return EnergyConsumptionResponse{}, fmt.Errorf("energy consumption: %w", err)
	}
	return r, nil
}

func (c *Client) CarbonFootprint(ctx context.Context, p RangeParams) (CarbonFootprintResponse, error) {
	r, err := cachedGet[CarbonFootprintResponse](ctx, c, resCarbon, "/analytics/carbon/footprint", nil, p.values(true, false))
	if err != nil {
		return CarbonFootprintResponse{}, fmt.Errorf("carbon footprint: %w", err)
	}
	return r, nil
}

func (c *Client) FinancialMetrics(ctx context.Context, p RangeParams) (FinancialMetricsResponse, error) {
	r, err := cachedGet[FinancialMetricsResponse](ctx, c, resFinancial, "/analytics/financial-metrics", nil, p.values(false, true))
	if err != nil {
		return FinancialMetricsResponse{}, fmt.Errorf("financial metrics: %w", err)
	}
	return r, nil
}

// SiteAnalytics returns the free-form analytics summary of one site.
func (c *Client) SiteAnalytics(ctx context.Context, siteID int64, params map[string]string) (map[string]any, error) {
	q := make(map[string]any, len(params))
	for k, v := range params {
		putString(q, k, v)
	}
	r, err := cachedGet[map[string]any](ctx, c, resSiteAnalytics, "/analytics/sites/"+strconv.FormatInt(siteID, 10),
		map[string]any{"siteId": siteID}, q)
	if err != nil {
		return nil, fmt.Errorf("site %d analytics: %w", siteID, err)
	}
	return r, nil
}

// Invalidate drops cached responses whose key contains pattern.
func (c *Client) Invalidate(pattern string) int { return c.cache.Invalidate(pattern) }

func (c *Client) InvalidateDashboard() int { return c.cache.Invalidate("dashboard") }
func (c *Client) InvalidateEnergy() int    { return c.cache.Invalidate("energy") }
func (c *Client) InvalidateSites() int     { return c.cache.Invalidate("sites") }
func (c *Client) InvalidateDevices() int   { return c.cache.Invalidate("devices") }

// ClearCache drops every cached response.
func (c *Client) ClearCache() { c.cache.Clear() }

func putInt(m map[string]any, name string, v int64) {
	if v > 0 {
		m[name] = v
	}
}

func putString(m map[string]any, name, v string) {
	if v != "" {
		m[name] = v
	}
}
