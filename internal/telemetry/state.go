// Package telemetry holds the aggregate view of one site that is built from
// the real-time EMS feed, and the rules for merging full and delta messages
// into it.
package telemetry

import (
	"time"
)

// UpdateKind tags an inbound message.
type UpdateKind string

const (
	FullUpdate         UpdateKind = "FULL_UPDATE"
	DeltaUpdate        UpdateKind = "DELTA_UPDATE"
	AlertUpdate        UpdateKind = "ALERT_UPDATE"
	DeviceStatusUpdate UpdateKind = "DEVICE_STATUS_UPDATE"
)

// Replaces reports whether sections carried by a message of this kind
// replace the stored ones. Every other kind merges.
func (k UpdateKind) Replaces() bool {
	return k == FullUpdate
}

// Message is one frame of the site dashboard topic.
type Message struct {
	SiteID string `json:"siteId"`
	// Timestamp is the producer's timestamp, kept verbatim.
	Timestamp string     `json:"timestamp,omitempty"`
	Type      UpdateKind `json:"type"`

	SiteInfo        *SiteInfo        `json:"siteInfo,omitempty"`
	BatterySystem   *BatterySystem   `json:"batterySystem,omitempty"`
	SolarArray      *SolarArray      `json:"solarArray,omitempty"`
	EVCharger       *EVCharger       `json:"evCharger,omitempty"`
	OperationalData *OperationalData `json:"operationalData,omitempty"`
	Forecast        []ForecastEntry  `json:"forecast,omitempty"`
	Schedule        []ScheduleEntry  `json:"schedule,omitempty"`
}

// ConnectionStatus reflects the push transport, not the data.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// State is the aggregate view of a site. Sections stay nil until the first
// message carrying them is applied.
type State struct {
	SiteID          string           `json:"siteId"`
	SiteInfo        *SiteInfo        `json:"siteInfo,omitempty"`
	BatterySystem   *BatterySystem   `json:"batterySystem,omitempty"`
	SolarArray      *SolarArray      `json:"solarArray,omitempty"`
	EVCharger       *EVCharger       `json:"evCharger,omitempty"`
	OperationalData *OperationalData `json:"operationalData,omitempty"`
	Forecast        []ForecastEntry  `json:"forecast"`
	Schedule        []ScheduleEntry  `json:"schedule"`

	LastUpdated      time.Time        `json:"lastUpdated,omitzero"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.SiteInfo = s.SiteInfo.Clone()
	out.BatterySystem = s.BatterySystem.Clone()
	out.SolarArray = s.SolarArray.Clone()
	out.EVCharger = s.EVCharger.Clone()
	out.OperationalData = s.OperationalData.Clone()
	out.Forecast = cloneSlice(s.Forecast)
	out.Schedule = cloneSlice(s.Schedule)
	return out
}

// apply folds msg into s. The caller has already checked the site id.
func (s *State) apply(msg Message, at time.Time) {
	if msg.Type.Replaces() {
		if msg.SiteInfo != nil {
			s.SiteInfo = msg.SiteInfo.Clone()
		}
		if msg.BatterySystem != nil {
			s.BatterySystem = msg.BatterySystem.Clone()
		}
		if msg.SolarArray != nil {
			s.SolarArray = msg.SolarArray.Clone()
		}
		if msg.EVCharger != nil {
			s.EVCharger = msg.EVCharger.Clone()
		}
		if msg.OperationalData != nil {
			s.OperationalData = msg.OperationalData.Clone()
		}
	} else {
		s.SiteInfo = mergeSection(s.SiteInfo, msg.SiteInfo)
		s.BatterySystem = mergeSection(s.BatterySystem, msg.BatterySystem)
		s.SolarArray = mergeSection(s.SolarArray, msg.SolarArray)
		s.EVCharger = mergeSection(s.EVCharger, msg.EVCharger)
		s.OperationalData = mergeSection(s.OperationalData, msg.OperationalData)
	}

	// Collections are always replaced wholesale.
	if msg.Forecast != nil {
		s.Forecast = cloneSlice(msg.Forecast)
	}
	if msg.Schedule != nil {
		s.Schedule = cloneSlice(msg.Schedule)
	}

	if at.After(s.LastUpdated) {
		s.LastUpdated = at
	}
}

type section[T any] interface {
	*T
	Merge(*T)
	Clone() *T
}

// mergeSection overlays delta onto stored, installing a copy of delta when
// nothing is stored yet.
func mergeSection[T any, P section[T]](stored, delta P) P {
	if delta == nil {
		return stored
	}
	if stored == nil {
		return delta.Clone()
	}
	stored.Merge(delta)
	return stored
}
