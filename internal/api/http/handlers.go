package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/service"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler exposes the coordinator, activity and discovery services over HTTP.
type Handler struct {
	coord      service.Coordinator
	activities service.ActivityService
	discovery  service.DiscoveryService
	health     Pinger
}

func NewHandler(coord service.Coordinator, activities service.ActivityService, discovery service.DiscoveryService, health Pinger) *Handler {
	return &Handler{coord: coord, activities: activities, discovery: discovery, health: health}
}

type createActivityRequest struct {
	Sport           string       `json:"sport"`
	Title           string       `json:"title"`
	StartTime       time.Time    `json:"start_time"`
	DurationMinutes int32        `json:"duration_minutes"`
	CapacityMin     int32        `json:"capacity_min"`
	CapacityMax     int32        `json:"capacity_max"`
	AllowLateJoin   bool         `json:"allow_late_join"`
	Venue           domain.Venue `json:"venue"`
}

type capacityRequest struct {
	CapacityMin int32 `json:"capacity_min"`
	CapacityMax int32 `json:"capacity_max"`
}

type leaveResponse struct {
	Left     domain.MembershipEntry   `json:"left"`
	Promoted []domain.MembershipEntry `json:"promoted"`
	State    domain.ActivityState     `json:"state"`
}

type releaseResponse struct {
	Entry    domain.MembershipEntry   `json:"entry"`
	Promoted []domain.MembershipEntry `json:"promoted"`
	State    domain.ActivityState     `json:"state"`
}

type discoverResponse struct {
	Results []domain.DiscoveryResult `json:"results"`
}

type membershipsResponse struct {
	Memberships []domain.MembershipEntry `json:"memberships"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	id, pid, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	out, err := h.coord.Join(r.Context(), id, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id, pid, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	out, err := h.coord.Leave(r.Context(), id, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaveResponse{Left: out.Entry, Promoted: nonNil(out.Promoted), State: out.State})
}

func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, h.coord.Remove)
}

func (h *Handler) DemoteParticipant(w http.ResponseWriter, r *http.Request) {
	h.release(w, r, h.coord.Demote)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, activityID, creatorID, participantID int32) (*domain.LeaveOutcome, error)) {
	id, caller, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	target, err := pathID(r, "participantId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), id, caller, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseResponse{Entry: out.Entry, Promoted: nonNil(out.Promoted), State: out.State})
}

func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	var req capacityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.coord.UpdateCapacity(r.Context(), id, caller, req.CapacityMin, req.CapacityMax)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out.Promoted = nonNil(out.Promoted)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Roster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.coord.Roster(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) LockStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ls, err := h.activities.LockStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := caller(w, r)
	if !ok {
		return
	}
	var req createActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.activities.CreateActivity(r.Context(), creatorID, &domain.Activity{
		Sport:           req.Sport,
		Title:           req.Title,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		CapacityMin:     req.CapacityMin,
		CapacityMax:     req.CapacityMax,
		AllowLateJoin:   req.AllowLateJoin,
		Venue:           req.Venue,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/activities/"+strconv.Itoa(int(a.ID)))
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.activities.GetActivity(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	var patch domain.ActivityPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.activities.UpdateActivity(r.Context(), caller, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) CancelActivity(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	a, err := h.activities.CancelActivity(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := activityAndCaller(w, r)
	if !ok {
		return
	}
	if err := h.activities.DeleteActivity(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	pid, ok := caller(w, r)
	if !ok {
		return
	}
	entries, err := h.activities.ListMemberships(r.Context(), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipsResponse{Memberships: nonNil(entries)})
}

// Discover handles GET /api/v1/discover?lat=&lng=&sport=&include_full=&starts_before=&limit=
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, r, domain.Invalid("lat is required and must be a number"))
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeError(w, r, domain.Invalid("lng is required and must be a number"))
		return
	}

	filters := domain.DiscoveryFilters{Sport: q.Get("sport")}
	if v := q.Get("include_full"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, domain.Invalid("include_full must be a boolean"))
			return
		}
		filters.IncludeFull = &b
	}
	if v := q.Get("starts_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, domain.Invalid("starts_before must be an RFC 3339 timestamp"))
			return
		}
		filters.StartsBefore = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, domain.Invalid("limit must be a non-negative integer"))
			return
		}
		filters.Limit = n
	}

	results, err := h.discovery.Discover(r.Context(), domain.Location{Latitude: lat, Longitude: lng}, filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, discoverResponse{Results: results})
}

func pathID(r *http.Request, name string) (int32, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("%s must be a positive integer, got %q", name, raw)
	}
	return int32(id), nil
}

func caller(w http.ResponseWriter, r *http.Request) (int32, bool) {
	pid, ok := ParticipantFromContext(r.Context())
	if !ok {
		unauthenticated(w, "participant is not authenticated")
	}
	return pid, ok
}

func activityAndCaller(w http.ResponseWriter, r *http.Request) (int32, int32, bool) {
	pid, ok := caller(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	return id, pid, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
