package model

import "time"

// DeviceClass is the coarse device family a scan came from.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
	DeviceUnknown DeviceClass = "unknown"
)

// ScanEvent is an immutable record of one scan. Events are only ever
// inserted; nothing mutates or deletes them.
type ScanEvent struct {
	ID           string      `json:"scan_id"`
	CodeID       string      `json:"code_id"`
	ParentScanID *string     `json:"parent_scan_id"`
	DeviceClass  DeviceClass `json:"device_class"`
	GeoHint      string      `json:"geo_hint"`
	OccurredAt   time.Time   `json:"occurred_at"`
}
