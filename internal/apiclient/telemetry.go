package apiclient

import "encoding/json"

// DeviceTelemetryEvent is a single device reading pushed by the device feed.
type DeviceTelemetryEvent struct {
	SiteID     int64           `json:"siteId"`
	DeviceID   int64           `json:"deviceId"`
	DeviceType string          `json:"deviceType"`
	Telemetry  json.RawMessage `json:"telemetry"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

const unknownTelemetryType = "UNKNOWN"

// ApplyDeviceTelemetry writes ev into the matching device of ov. It returns
// false, leaving ov untouched, when the event belongs to another site or
// names a device the overview does not list.
func ApplyDeviceTelemetry(ov *SiteOverview, ev DeviceTelemetryEvent) bool {
	if ov == nil || ev.SiteID != ov.ID {
		return false
	}
	for i := range ov.Devices {
		d := &ov.Devices[i]
		if d.ID != ev.DeviceID {
			continue
		}

		prev := d.LatestTelemetry
		next := &LatestTelemetry{
			Timestamp: ev.Timestamp,
			Data:      cloneRaw(ev.Telemetry),
		}
		if next.Timestamp == "" && prev != nil {
			next.Timestamp = prev.Timestamp
		}
		switch {
		case prev != nil && prev.TelemetryType != "":
			next.TelemetryType = prev.TelemetryType
		case ev.DeviceType != "":
			next.TelemetryType = ev.DeviceType
		default:
			next.TelemetryType = unknownTelemetryType
		}
		d.LatestTelemetry = next
		return true
	}
	return false
}
