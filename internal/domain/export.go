package domain

import "time"

type DataType string

const (
	DataLocation DataType = "location"
	DataBattery  DataType = "battery"
	DataStatus   DataType = "status"
	DataAlerts   DataType = "alerts"
)

// dataTypeOrder breaks ties between records sharing an entity and timestamp.
var dataTypeOrder = map[DataType]int{
	DataLocation: 0,
	DataBattery:  1,
	DataStatus:   2,
	DataAlerts:   3,
}

func (d DataType) Valid() bool {
	_, ok := dataTypeOrder[d]
	return ok
}

func (d DataType) Order() int {
	return dataTypeOrder[d]
}

type ExportRequest struct {
	EntityIDs []string
	Range     TimeRange
	Types     []DataType
	// Format is handed to the external formatter untouched (csv, json, pdf).
	Format string
}

// StatusChange is one entry of an entity's status history.
type StatusChange struct {
	EntityID string       `json:"entity_id"`
	At       time.Time    `json:"at"`
	From     SafetyStatus `json:"from,omitempty"`
	To       SafetyStatus `json:"to"`
}

// ExportRecord is one row of an export. Exactly one of the payload groups is
// populated, according to Type.
type ExportRecord struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      DataType  `json:"type"`

	Location   *Coordinate  `json:"location,omitempty"`
	BatteryPct *int         `json:"battery_pct,omitempty"`
	Online     *bool        `json:"online,omitempty"`
	Status     SafetyStatus `json:"status,omitempty"`
	Alert      *Alert       `json:"alert,omitempty"`
}
