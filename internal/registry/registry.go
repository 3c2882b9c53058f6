// Package registry holds enrolled entities and the contact book they refer
// to. Contacts are stored once and shared by every entity that lists them.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sanatrack/safety-engine/internal/domain"
)

// AlertGuard blocks removal of entities with open alerts.
type AlertGuard interface {
	HasActive(entityID string) bool
}

type Registry struct {
	mu       sync.RWMutex
	entities map[string]*domain.Entity
	contacts map[string]*domain.ContactRef
	guard    AlertGuard
}

func New(guard AlertGuard) *Registry {
	return &Registry{
		entities: make(map[string]*domain.Entity),
		contacts: make(map[string]*domain.ContactRef),
		guard:    guard,
	}
}

// UpsertContact stores c in the contact book. Existing entries are replaced,
// never mutated, so callers holding an old *ContactRef keep a stable value.
func (r *Registry) UpsertContact(c domain.ContactRef) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = &c
	return nil
}

// Enroll registers an entity. Every contact id it lists must already be in
// the contact book.
func (r *Registry) Enroll(e domain.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty entity id", domain.ErrInvalidEntity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[e.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEntity, e.ID)
	}
	for _, id := range e.ContactIDs {
		if _, ok := r.contacts[id]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownContact, id)
		}
	}
	e.ContactIDs = dedupe(e.ContactIDs)
	r.entities[e.ID] = &e
	return nil
}

func (r *Registry) AddContact(entityID, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityID)
	}
	if _, ok := r.contacts[contactID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownContact, contactID)
	}
	updated := *e
	updated.ContactIDs = dedupe(append(append([]string(nil), e.ContactIDs...), contactID))
	r.entities[entityID] = &updated
	return nil
}

func (r *Registry) RemoveContact(entityID, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityID)
	}
	updated := *e
	updated.ContactIDs = make([]string, 0, len(e.ContactIDs))
	for _, id := range e.ContactIDs {
		if id != contactID {
			updated.ContactIDs = append(updated.ContactIDs, id)
		}
	}
	r.entities[entityID] = &updated
	return nil
}

// Remove deletes an entity unless it still has unresolved alerts.
func (r *Registry) Remove(entityID string) error {
	if r.guard != nil && r.guard.HasActive(entityID) {
		return fmt.Errorf("%w: %s", domain.ErrActiveAlerts, entityID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[entityID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityID)
	}
	delete(r.entities, entityID)
	return nil
}

func (r *Registry) Get(entityID string) (domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entityID]
	if !ok {
		return domain.Entity{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityID)
	}
	out := *e
	out.ContactIDs = append([]string(nil), e.ContactIDs...)
	return out, nil
}

func (r *Registry) Exists(entityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[entityID]
	return ok
}

// IDs returns every enrolled entity id in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ContactsFor returns the entity's contacts ordered by priority. Ties keep
// the order in which they were added to the entity.
func (r *Registry) ContactsFor(_ context.Context, entityID string) ([]*domain.ContactRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityID)
	}
	out := make([]*domain.ContactRef, 0, len(e.ContactIDs))
	for _, id := range e.ContactIDs {
		if c, ok := r.contacts[id]; ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
