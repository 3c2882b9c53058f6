package store

import (
	"sync"

	"sanatrack/safety-engine/internal/domain"
)

// GeofenceIndex holds the authorized zones per entity. Zone edits come from
// the administrative API, never from the ingest path.
type GeofenceIndex struct {
	mu    sync.RWMutex
	zones map[string][]domain.GeofenceZone
}

func NewGeofenceIndex() *GeofenceIndex {
	return &GeofenceIndex{zones: make(map[string][]domain.GeofenceZone)}
}

// ZonesFor returns a copy of the entity's zones. An empty result means the
// entity is unconstrained.
func (g *GeofenceIndex) ZonesFor(entityID string) []domain.GeofenceZone {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.GeofenceZone(nil), g.zones[entityID]...)
}

// SetZones replaces the entity's zone set. Passing no zones removes the
// geofence constraint.
func (g *GeofenceIndex) SetZones(entityID string, zones []domain.GeofenceZone) error {
	copied := make([]domain.GeofenceZone, 0, len(zones))
	for _, z := range zones {
		if err := z.Validate(); err != nil {
			return err
		}
		z.EntityID = entityID
		z.Vertices = append([]domain.Coordinate(nil), z.Vertices...)
		copied = append(copied, z)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(copied) == 0 {
		delete(g.zones, entityID)
		return nil
	}
	g.zones[entityID] = copied
	return nil
}

// Contains is the geometric membership test for a single zone.
func Contains(zone domain.GeofenceZone, c domain.Coordinate) bool {
	return zone.Contains(c)
}

// InAnyZone reports whether c is inside at least one of zones.
func InAnyZone(zones []domain.GeofenceZone, c domain.Coordinate) bool {
	for _, z := range zones {
		if Contains(z, c) {
			return true
		}
	}
	return false
}
