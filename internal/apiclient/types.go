package apiclient

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type SiteOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Site struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	LocationLat   float64  `json:"locationLat"`
	LocationLng   float64  `json:"locationLng"`
	CapacityMW    float64  `json:"capacityMw"`
	Status        string   `json:"status"`
	Timezone      string   `json:"timezone,omitempty"`
	Address       string   `json:"address,omitempty"`
	ContactPerson string   `json:"contactPerson,omitempty"`
	ContactEmail  string   `json:"contactEmail,omitempty"`
	ContactPhone  string   `json:"contactPhone,omitempty"`
	DeviceCount   int      `json:"deviceCount,omitempty"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
	Devices       []Device `json:"devices,omitempty"`
}

// sitesPage is the paginated envelope returned by GET /sites.
type sitesPage struct {
	Content       []Site `json:"content"`
	TotalElements int64  `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	Size          int    `json:"size"`
	Number        int    `json:"number"`
}

type Device struct {
	ID            int64           `json:"id"`
	SiteID        int64           `json:"siteId"`
	Type          string          `json:"type"`
	Model         string          `json:"model"`
	Status        string          `json:"status"`
	LastSeen      string          `json:"lastSeen,omitempty"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
}

type SiteOverview struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	LocationLat   float64      `json:"locationLat"`
	LocationLng   float64      `json:"locationLng"`
	CapacityMW    float64      `json:"capacityMw"`
	Status        string       `json:"status"`
	Timezone      string       `json:"timezone"`
	Address       string       `json:"address"`
	ContactPerson string       `json:"contactPerson"`
	ContactEmail  string       `json:"contactEmail"`
	ContactPhone  string       `json:"contactPhone"`
	LastUpdated   string       `json:"lastUpdated"`
	Devices       []SiteDevice `json:"devices"`
	Summary       SiteSummary  `json:"summary"`
}

// Clone returns a deep copy.
func (o SiteOverview) Clone() SiteOverview {
	out := o
	if o.Devices != nil {
		out.Devices = make([]SiteDevice, len(o.Devices))
		for i, d := range o.Devices {
			out.Devices[i] = d.clone()
		}
	}
	return out
}

type SiteDevice struct {
	ID                int64            `json:"id"`
	SerialNumber      string           `json:"serialNumber"`
	Name              string           `json:"name"`
	DeviceType        string           `json:"deviceType"`
	Model             string           `json:"model"`
	Manufacturer      string           `json:"manufacturer"`
	Status            string           `json:"status"`
	LastCommunication *string          `json:"lastCommunication"`
	LatestTelemetry   *LatestTelemetry `json:"latestTelemetry"`
}

func (d SiteDevice) clone() SiteDevice {
	out := d
	if d.LastCommunication != nil {
		v := *d.LastCommunication
		out.LastCommunication = &v
	}
	if d.LatestTelemetry != nil {
		t := *d.LatestTelemetry
		t.Data = cloneRaw(d.LatestTelemetry.Data)
		out.LatestTelemetry = &t
	}
	return out
}

// LatestTelemetry carries the device-type specific payload verbatim.
type LatestTelemetry struct {
	Timestamp     string          `json:"timestamp"`
	TelemetryType string          `json:"telemetryType"`
	Data          json.RawMessage `json:"data"`
}

type SiteSummary struct {
	TotalDevices        int           `json:"totalDevices"`
	OnlineDevices       int           `json:"onlineDevices"`
	OfflineDevices      int           `json:"offlineDevices"`
	AlertingDevices     int           `json:"alertingDevices"`
	LastTelemetryUpdate string        `json:"lastTelemetryUpdate"`
	EnergyMetrics       EnergyMetrics `json:"energyMetrics"`
}

type EnergyMetrics struct {
	TotalPowerKW   float64 `json:"totalPowerKw"`
	TotalEnergyKWh float64 `json:"totalEnergyKwh"`
	AverageVoltage float64 `json:"averageVoltage"`
	AverageCurrent float64 `json:"averageCurrent"`
}

type TimeSeriesPoint struct {
	Timestamp       string          `json:"timestamp"`
	EnergyConsumed  float64         `json:"energyConsumed"`
	EnergyGenerated float64         `json:"energyGenerated"`
	CarbonSaved     float64         `json:"carbonSaved"`
	CostSavings     decimal.Decimal `json:"costSavings"`
}

type DashboardResponse struct {
	TotalEnergyConsumed    float64            `json:"totalEnergyConsumed"`
	TotalEnergyGenerated   float64            `json:"totalEnergyGenerated"`
	CarbonFootprintReduced float64            `json:"carbonFootprintReduced"`
	CostSavings            decimal.Decimal    `json:"costSavings"`
	ActiveSites            int                `json:"activeSites"`
	ActiveDevices          int                `json:"activeDevices"`
	AverageEfficiency      float64            `json:"averageEfficiency"`
	TimeSeriesData         []TimeSeriesPoint  `json:"timeSeriesData"`
	SiteBreakdown          map[string]float64 `json:"siteBreakdown"`
	DeviceTypeBreakdown    map[string]float64 `json:"deviceTypeBreakdown"`
	LastUpdated            string             `json:"lastUpdated"`
}

type ConsumptionPoint struct {
	Timestamp   string  `json:"timestamp"`
	Consumption float64 `json:"consumption"`
}

type EnergyConsumptionResponse struct {
	TotalConsumption   float64            `json:"totalConsumption"`
	AverageConsumption float64            `json:"averageConsumption"`
	PeakConsumption    float64            `json:"peakConsumption"`
	Aggregation        string             `json:"aggregation"`
	PeriodStart        string             `json:"periodStart"`
	PeriodEnd          string             `json:"periodEnd"`
	DataPoints         []ConsumptionPoint `json:"dataPoints"`
}

type CarbonPoint struct {
	Timestamp string  `json:"timestamp"`
	Carbon    float64 `json:"carbon"`
}

type CarbonFootprintResponse struct {
	TotalCarbon   float64       `json:"totalCarbon"`
	AverageCarbon float64       `json:"averageCarbon"`
	PeakCarbon    float64       `json:"peakCarbon"`
	PeriodStart   string        `json:"periodStart"`
	PeriodEnd     string        `json:"periodEnd"`
	DataPoints    []CarbonPoint `json:"dataPoints"`
}

type FinancialPoint struct {
	Timestamp string          `json:"timestamp"`
	Revenue   decimal.Decimal `json:"revenue"`
	Costs     decimal.Decimal `json:"costs"`
	Profit    decimal.Decimal `json:"profit"`
}

type FinancialMetricsResponse struct {
	TotalRevenue decimal.Decimal  `json:"totalRevenue"`
	TotalCosts   decimal.Decimal  `json:"totalCosts"`
	NetProfit    decimal.Decimal  `json:"netProfit"`
	ROI          float64          `json:"roi"`
	PeriodStart  string           `json:"periodStart"`
	PeriodEnd    string           `json:"periodEnd"`
	DataPoints   []FinancialPoint `json:"dataPoints"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
