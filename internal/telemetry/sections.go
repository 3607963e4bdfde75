package telemetry

// Every field of a section is optional. A nil field in a delta means "not
// mentioned" and leaves the stored value alone.

type SiteInfo struct {
	Location    *string `json:"location,omitempty"`
	Geo         *string `json:"geo,omitempty"`
	Contact     *string `json:"contact,omitempty"`
	Email       *string `json:"email,omitempty"`
	Website     *string `json:"website,omitempty"`
	Status      *string `json:"status,omitempty"`
	LastUpdated *string `json:"lastUpdated,omitempty"`
}

func (s *SiteInfo) Merge(d *SiteInfo) {
	if d == nil {
		return
	}
	overlay(&s.Location, d.Location)
	overlay(&s.Geo, d.Geo)
	overlay(&s.Contact, d.Contact)
	overlay(&s.Email, d.Email)
	overlay(&s.Website, d.Website)
	overlay(&s.Status, d.Status)
	overlay(&s.LastUpdated, d.LastUpdated)
}

func (s *SiteInfo) Clone() *SiteInfo {
	if s == nil {
		return nil
	}
	return &SiteInfo{
		Location:    clonePtr(s.Location),
		Geo:         clonePtr(s.Geo),
		Contact:     clonePtr(s.Contact),
		Email:       clonePtr(s.Email),
		Website:     clonePtr(s.Website),
		Status:      clonePtr(s.Status),
		LastUpdated: clonePtr(s.LastUpdated),
	}
}

// Band is a min/max pair, such as the target state-of-charge band.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Cycles tracks battery cycle count against the rated maximum.
type Cycles struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type BatterySystem struct {
	SOC               *float64 `json:"soc,omitempty"`
	ChargeRate        *float64 `json:"chargeRate,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	RemainingCapacity *float64 `json:"remainingCapacity,omitempty"`
	HealthStatus      *string  `json:"healthStatus,omitempty"`
	Efficiency        *float64 `json:"efficiency,omitempty"`
	TargetBand        *Band    `json:"targetBand,omitempty"`
	AvgModules        *float64 `json:"avgModules,omitempty"`
	NominalCapacity   *float64 `json:"nominalCapacity,omitempty"`
	Cycles            *Cycles  `json:"cycles,omitempty"`
}

func (b *BatterySystem) Merge(d *BatterySystem) {
	if d == nil {
		return
	}
	overlay(&b.SOC, d.SOC)
	overlay(&b.ChargeRate, d.ChargeRate)
	overlay(&b.Temperature, d.Temperature)
	overlay(&b.RemainingCapacity, d.RemainingCapacity)
	overlay(&b.HealthStatus, d.HealthStatus)
	overlay(&b.Efficiency, d.Efficiency)
	overlay(&b.TargetBand, d.TargetBand)
	overlay(&b.AvgModules, d.AvgModules)
	overlay(&b.NominalCapacity, d.NominalCapacity)
	overlay(&b.Cycles, d.Cycles)
}

func (b *BatterySystem) Clone() *BatterySystem {
	if b == nil {
		return nil
	}
	return &BatterySystem{
		SOC:               clonePtr(b.SOC),
		ChargeRate:        clonePtr(b.ChargeRate),
		Temperature:       clonePtr(b.Temperature),
		RemainingCapacity: clonePtr(b.RemainingCapacity),
		HealthStatus:      clonePtr(b.HealthStatus),
		Efficiency:        clonePtr(b.Efficiency),
		TargetBand:        clonePtr(b.TargetBand),
		AvgModules:        clonePtr(b.AvgModules),
		NominalCapacity:   clonePtr(b.NominalCapacity),
		Cycles:            clonePtr(b.Cycles),
	}
}

type SolarArray struct {
	CurrentOutput       *float64 `json:"currentOutput,omitempty"`
	EnergyYield         *float64 `json:"energyYield,omitempty"`
	PanelTemperature    *float64 `json:"panelTemperature,omitempty"`
	Irradiance          *float64 `json:"irradiance,omitempty"`
	InverterEfficiency  *float64 `json:"inverterEfficiency,omitempty"`
	PeakTime            *string  `json:"peakTime,omitempty"`
	YesterdayComparison *string  `json:"yesterdayComparison,omitempty"`
	CloudCover          *float64 `json:"cloudCover,omitempty"`
	InverterModel       *string  `json:"inverterModel,omitempty"`
	SafeOperating       *bool    `json:"safeOperating,omitempty"`
}

func (s *SolarArray) Merge(d *SolarArray) {
	if d == nil {
		return
	}
	overlay(&s.CurrentOutput, d.CurrentOutput)
	overlay(&s.EnergyYield, d.EnergyYield)
	overlay(&s.PanelTemperature, d.PanelTemperature)
	overlay(&s.Irradiance, d.Irradiance)
	overlay(&s.InverterEfficiency, d.InverterEfficiency)
	overlay(&s.PeakTime, d.PeakTime)
	overlay(&s.YesterdayComparison, d.YesterdayComparison)
	overlay(&s.CloudCover, d.CloudCover)
	overlay(&s.InverterModel, d.InverterModel)
	overlay(&s.SafeOperating, d.SafeOperating)
}

func (s *SolarArray) Clone() *SolarArray {
	if s == nil {
		return nil
	}
	return &SolarArray{
		CurrentOutput:       clonePtr(s.CurrentOutput),
		EnergyYield:         clonePtr(s.EnergyYield),
		PanelTemperature:    clonePtr(s.PanelTemperature),
		Irradiance:          clonePtr(s.Irradiance),
		InverterEfficiency:  clonePtr(s.InverterEfficiency),
		PeakTime:            clonePtr(s.PeakTime),
		YesterdayComparison: clonePtr(s.YesterdayComparison),
		CloudCover:          clonePtr(s.CloudCover),
		InverterModel:       clonePtr(s.InverterModel),
		SafeOperating:       clonePtr(s.SafeOperating),
	}
}

type EVCharger struct {
	ActiveSessions     *int     `json:"activeSessions,omitempty"`
	TotalPorts         *int     `json:"totalPorts,omitempty"`
	AvailablePorts     *int     `json:"availablePorts,omitempty"`
	PowerDelivered     *float64 `json:"powerDelivered,omitempty"`
	AvgSessionDuration *float64 `json:"avgSessionDuration,omitempty"`
	Revenue            *float64 `json:"revenue,omitempty"`
	Faults             *int     `json:"faults,omitempty"`
	Uptime             *float64 `json:"uptime,omitempty"`
	AvgPerSession      *float64 `json:"avgPerSession,omitempty"`
	PeakHours          *string  `json:"peakHours,omitempty"`
	Rate               *float64 `json:"rate,omitempty"`
}

func (e *EVCharger) Merge(d *EVCharger) {
	if d == nil {
		return
	}
	overlay(&e.ActiveSessions, d.ActiveSessions)
	overlay(&e.TotalPorts, d.TotalPorts)
	overlay(&e.AvailablePorts, d.AvailablePorts)
	overlay(&e.PowerDelivered, d.PowerDelivered)
	overlay(&e.AvgSessionDuration, d.AvgSessionDuration)
	overlay(&e.Revenue, d.Revenue)
	overlay(&e.Faults, d.Faults)
	overlay(&e.Uptime, d.Uptime)
	overlay(&e.AvgPerSession, d.AvgPerSession)
	overlay(&e.PeakHours, d.PeakHours)
	overlay(&e.Rate, d.Rate)
}

func (e *EVCharger) Clone() *EVCharger {
	if e == nil {
		return nil
	}
	return &EVCharger{
		ActiveSessions:     clonePtr(e.ActiveSessions),
		TotalPorts:         clonePtr(e.TotalPorts),
		AvailablePorts:     clonePtr(e.AvailablePorts),
		PowerDelivered:     clonePtr(e.PowerDelivered),
		AvgSessionDuration: clonePtr(e.AvgSessionDuration),
		Revenue:            clonePtr(e.Revenue),
		Faults:             clonePtr(e.Faults),
		Uptime:             clonePtr(e.Uptime),
		AvgPerSession:      clonePtr(e.AvgPerSession),
		PeakHours:          clonePtr(e.PeakHours),
		Rate:               clonePtr(e.Rate),
	}
}

type OperationalData struct {
	TotalDevices      *int     `json:"totalDevices,omitempty"`
	OnlineDevices     *int     `json:"onlineDevices,omitempty"`
	OfflineDevices    *int     `json:"offlineDevices,omitempty"`
	FaultDevices      *int     `json:"faultDevices,omitempty"`
	TotalActiveAlerts *int     `json:"totalActiveAlerts,omitempty"`
	SystemUptime      *float64 `json:"systemUptime,omitempty"`
	NetworkStatus     *string  `json:"networkStatus,omitempty"`
}

func (o *OperationalData) Merge(d *OperationalData) {
	if d == nil {
		return
	}
	overlay(&o.TotalDevices, d.TotalDevices)
	overlay(&o.OnlineDevices, d.OnlineDevices)
	overlay(&o.OfflineDevices, d.OfflineDevices)
	overlay(&o.FaultDevices, d.FaultDevices)
	overlay(&o.TotalActiveAlerts, d.TotalActiveAlerts)
	overlay(&o.SystemUptime, d.SystemUptime)
	overlay(&o.NetworkStatus, d.NetworkStatus)
}

func (o *OperationalData) Clone() *OperationalData {
	if o == nil {
		return nil
	}
	return &OperationalData{
		TotalDevices:      clonePtr(o.TotalDevices),
		OnlineDevices:     clonePtr(o.OnlineDevices),
		OfflineDevices:    clonePtr(o.OfflineDevices),
		FaultDevices:      clonePtr(o.FaultDevices),
		TotalActiveAlerts: clonePtr(o.TotalActiveAlerts),
		SystemUptime:      clonePtr(o.SystemUptime),
		NetworkStatus:     clonePtr(o.NetworkStatus),
	}
}

type ForecastEntry struct {
	Time       string  `json:"time"`
	Irradiance float64 `json:"irradiance"`
}

type ScheduleEntry struct {
	Task string `json:"task"`
	Time string `json:"time"`
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = clonePtr(src)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
