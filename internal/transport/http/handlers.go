package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/export"
	"sanatrack/safety-engine/internal/pipeline"
)

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// parseRange reads ?from=&to= as RFC 3339, or ?preset= relative to now.
func (s *Server) parseRange(r *http.Request) (domain.TimeRange, error) {
	q := r.URL.Query()
	if preset := q.Get("preset"); preset != "" {
		return export.RangeForPreset(preset, s.now())
	}
	var tr domain.TimeRange
	var err error
	if v := q.Get("from"); v != "" {
		if tr.From, err = time.Parse(time.RFC3339, v); err != nil {
			return tr, fmt.Errorf("invalid from: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if tr.To, err = time.Parse(time.RFC3339, v); err != nil {
			return tr, fmt.Errorf("invalid to: %w", err)
		}
	}
	return tr, nil
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var sample domain.TelemetrySample
	if !decode(w, r, &sample) {
		return
	}
	res, err := s.pipeline.Ingest(r.Context(), sample)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	out := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		if e, err := s.registry.Get(id); err == nil {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) {
	var e domain.Entity
	if !decode(w, r, &e) {
		return
	}
	if err := s.registry.Enroll(e); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.registry.Get(e.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(chi.URLParam(r, "entity_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) removeEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.RemoveEntity(chi.URLParam(r, "entity_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) upsertContact(w http.ResponseWriter, r *http.Request) {
	var c domain.ContactRef
	if !decode(w, r, &c) {
		return
	}
	c.ID = chi.URLParam(r, "contact_id")
	if err := s.registry.UpsertContact(c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) addContact(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.AddContact(chi.URLParam(r, "entity_id"), chi.URLParam(r, "contact_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeContact(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveContact(chi.URLParam(r, "entity_id"), chi.URLParam(r, "contact_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setZones(w http.ResponseWriter, r *http.Request) {
	var zones []domain.GeofenceZone
	if !decode(w, r, &zones) {
		return
	}
	if err := s.pipeline.SetZones(chi.URLParam(r, "entity_id"), zones); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")
	st, err := s.pipeline.CurrentStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": id, "status": st})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	sample, err := s.pipeline.Latest(chi.URLParam(r, "entity_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) telemetry(w http.ResponseWriter, r *http.Request) {
	tr, err := s.parseRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	seq, err := s.pipeline.Telemetry(chi.URLParam(r, "entity_id"), tr)
	if err != nil {
		writeError(w, err)
		return
	}
	out := []domain.TelemetrySample{}
	for sample := range seq {
		out = append(out, sample)
	}
	writeJSON(w, http.StatusOK, out)
}

// nearby serves ?lat=&lng=&radius_m= with the ids of entities inside the
// circle, nearest first.
func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var c domain.Coordinate
	var radius float64
	var err error
	if c.Lat, err = strconv.ParseFloat(q.Get("lat"), 64); err != nil {
		badRequest(w, "invalid lat")
		return
	}
	if c.Lng, err = strconv.ParseFloat(q.Get("lng"), 64); err != nil {
		badRequest(w, "invalid lng")
		return
	}
	if radius, err = strconv.ParseFloat(q.Get("radius_m"), 64); err != nil || radius <= 0 {
		badRequest(w, "radius_m must be a positive number")
		return
	}
	if !c.Valid() {
		badRequest(w, "coordinate out of range")
		return
	}

	ids, err := s.Locator.Nearby(r.Context(), c, radius)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_ids": ids})
}

func (s *Server) activeAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.pipeline.ActiveAlerts(chi.URLParam(r, "entity_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) alertHistory(w http.ResponseWriter, r *http.Request) {
	tr, err := s.parseRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	seq, err := s.pipeline.AlertHistory(chi.URLParam(r, "entity_id"), tr)
	if err != nil {
		writeError(w, err)
		return
	}
	out := []*domain.Alert{}
	for a := range seq {
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

type manualResponse struct {
	*pipeline.ManualResult
	DispatchError string `json:"dispatch_error,omitempty"`
}

func toManualResponse(res *pipeline.ManualResult) manualResponse {
	out := manualResponse{ManualResult: res}
	if res.DispatchErr != nil {
		out.DispatchError = res.DispatchErr.Error()
	}
	return out
}

func (s *Server) manualAlert(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ManualRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.ManualAlert(r.Context(), chi.URLParam(r, "entity_id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toManualResponse(res))
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ManualRequest
	if !decode(w, r, &req) {
		return
	}
	results, err := s.pipeline.BroadcastManual(r.Context(), req, s.BroadcastParallel)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]manualResponse, len(results))
	for id, res := range results {
		out[id] = toManualResponse(res)
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	kind := domain.AlertKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		badRequest(w, fmt.Sprintf("unknown alert kind %q", kind))
		return
	}
	a, err := s.pipeline.ResolveAlert(chi.URLParam(r, "entity_id"), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type exportRequest struct {
	EntityIDs []string          `json:"entity_ids"`
	Types     []domain.DataType `json:"types"`
	Format    string            `json:"format"`
	Preset    string            `json:"preset,omitempty"`
	From      *time.Time        `json:"from,omitempty"`
	To        *time.Time        `json:"to,omitempty"`
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var body exportRequest
	if !decode(w, r, &body) {
		return
	}

	req := domain.ExportRequest{EntityIDs: body.EntityIDs, Types: body.Types, Format: body.Format}
	if body.Preset != "" {
		tr, err := export.RangeForPreset(body.Preset, s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		req.Range = tr
	}
	if body.From != nil {
		req.Range.From = *body.From
	}
	if body.To != nil {
		req.Range.To = *body.To
	}

	plan, err := s.planner.Plan(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if plan.Records == nil {
		plan.Records = []domain.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, plan)
}
