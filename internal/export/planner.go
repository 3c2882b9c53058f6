// Package export selects the records an export covers. Rendering them into
// a file format is left to the caller.
package export

import (
	"fmt"
	"iter"
	"sort"

	"sanatrack/safety-engine/internal/domain"
)

type TelemetrySource interface {
	Query(entityID string, r domain.TimeRange) iter.Seq[domain.TelemetrySample]
}

type StatusSource interface {
	History(entityID string, r domain.TimeRange) iter.Seq[domain.StatusChange]
}

type AlertSource interface {
	History(entityID string, r domain.TimeRange) iter.Seq[*domain.Alert]
}

type EntitySource interface {
	Exists(entityID string) bool
}

// Plan is the planner's output. Format is copied from the request and not
// interpreted here.
type Plan struct {
	Format  string                `json:"format"`
	Range   domain.TimeRange      `json:"range"`
	Records []domain.ExportRecord `json:"records"`
}

type Planner struct {
	telemetry TelemetrySource
	statuses  StatusSource
	alerts    AlertSource
	entities  EntitySource
}

func NewPlanner(telemetry TelemetrySource, statuses StatusSource, alerts AlertSource, entities EntitySource) *Planner {
	return &Planner{telemetry: telemetry, statuses: statuses, alerts: alerts, entities: entities}
}

// Plan returns the records of the requested types, ordered by entity id
// and then timestamp. No matching data yields an empty plan, not an error.
func (p *Planner) Plan(req domain.ExportRequest) (*Plan, error) {
	types, err := validate(req)
	if err != nil {
		return nil, err
	}

	ids := uniqueSorted(req.EntityIDs)
	for _, id := range ids {
		if p.entities != nil && !p.entities.Exists(id) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, id)
		}
	}

	plan := &Plan{Format: req.Format, Range: req.Range}
	if req.Range.Empty() {
		return plan, nil
	}
	for _, id := range ids {
		plan.Records = append(plan.Records, p.entityRecords(id, req.Range, types)...)
	}
	return plan, nil
}

func (p *Planner) entityRecords(entityID string, r domain.TimeRange, types map[domain.DataType]bool) []domain.ExportRecord {
	var out []domain.ExportRecord

	if types[domain.DataLocation] || types[domain.DataBattery] {
		for s := range p.telemetry.Query(entityID, r) {
			if types[domain.DataLocation] {
				loc := s.Location
				out = append(out, domain.ExportRecord{EntityID: entityID, Timestamp: s.Timestamp, Type: domain.DataLocation, Location: &loc})
			}
			if types[domain.DataBattery] {
				battery, online := s.BatteryPct, s.Online
				out = append(out, domain.ExportRecord{EntityID: entityID, Timestamp: s.Timestamp, Type: domain.DataBattery, BatteryPct: &battery, Online: &online})
			}
		}
	}
	if types[domain.DataStatus] {
		for c := range p.statuses.History(entityID, r) {
			out = append(out, domain.ExportRecord{EntityID: entityID, Timestamp: c.At, Type: domain.DataStatus, Status: c.To})
		}
	}
	if types[domain.DataAlerts] {
		for a := range p.alerts.History(entityID, r) {
			out = append(out, domain.ExportRecord{EntityID: entityID, Timestamp: a.RaisedAt, Type: domain.DataAlerts, Status: a.Severity, Alert: a})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Type.Order() < out[j].Type.Order()
	})
	return out
}

func validate(req domain.ExportRequest) (map[domain.DataType]bool, error) {
	if len(req.EntityIDs) == 0 {
		return nil, fmt.Errorf("%w: no entities selected", domain.ErrInvalidExport)
	}
	if len(req.Types) == 0 {
		return nil, fmt.Errorf("%w: no data types selected", domain.ErrInvalidExport)
	}
	if !req.Range.To.IsZero() && req.Range.From.After(req.Range.To) {
		return nil, fmt.Errorf("%w: range starts after it ends", domain.ErrInvalidExport)
	}
	types := make(map[domain.DataType]bool, len(req.Types))
	for _, t := range req.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown data type %q", domain.ErrInvalidExport, t)
		}
		types[t] = true
	}
	return types, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
