package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/ledger"
	"example.com/octofit/internal/persistence"
)

// ActivityView is the wire form of a ledger entry.
type ActivityView struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	ActivityTypeID  string              `json:"activity_type_id"`
	ActivityType    domain.ActivityType `json:"activity_type"`
	DurationMinutes int                 `json:"duration_minutes"`
	Distance        *float64            `json:"distance"`
	CaloriesBurned  *int                `json:"calories_burned"`
	Notes           string              `json:"notes"`
	ActivityDate    time.Time           `json:"activity_date"`
	DateLogged      time.Time           `json:"date_logged"`
	PointsPerMinute domain.Rate         `json:"points_per_minute"`
	PointsEarned    int64               `json:"points_earned"`
	Status          string              `json:"status"`
	Void            *VoidView           `json:"void,omitempty"`
}

// VoidView describes why an entry stopped counting.
type VoidView struct {
	Reason   string    `json:"reason"`
	VoidedBy string    `json:"voided_by"`
	VoidedAt time.Time `json:"voided_at"`
}

func activityView(a domain.Activity) ActivityView {
	v := ActivityView{
		ID:              a.ID,
		UserID:          a.UserID,
		ActivityTypeID:  a.ActivityTypeID,
		ActivityType:    a.ActivityType,
		DurationMinutes: a.DurationMinutes,
		Distance:        a.Distance,
		CaloriesBurned:  a.CaloriesBurned,
		Notes:           a.Notes,
		ActivityDate:    a.ActivityDate,
		DateLogged:      a.LoggedAt,
		PointsPerMinute: a.PointsPerMinute,
		PointsEarned:    a.PointsEarned,
		Status:          string(a.Status()),
	}
	if a.Void != nil {
		v.Void = &VoidView{Reason: a.Void.Reason, VoidedBy: a.Void.VoidedBy, VoidedAt: a.Void.VoidedAt}
	}
	return v
}

type activityPage struct {
	Items      []ActivityView `json:"items"`
	NextCursor *string        `json:"next_cursor"`
}

type createActivityRequest struct {
	ActivityTypeID  string      `json:"activity_type_id"`
	DurationMinutes json.Number `json:"duration_minutes"`
	Distance        *float64    `json:"distance"`
	CaloriesBurned  *int        `json:"calories_burned"`
	Notes           string      `json:"notes"`
	ActivityDate    string      `json:"activity_date"`
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	var req createActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var duration int
	if req.DurationMinutes != "" {
		n, err := strconv.Atoi(req.DurationMinutes.String())
		if err != nil {
			writeDomainError(w, r, domain.NewValidationError("duration_minutes", domain.CodeInvalidDuration, "duration_minutes must be a whole number of minutes"))
			return
		}
		duration = n
	}

	in := ledger.NewActivity{
		UserID:          caller(r),
		ActivityTypeID:  strings.TrimSpace(req.ActivityTypeID),
		DurationMinutes: duration,
		Distance:        req.Distance,
		CaloriesBurned:  req.CaloriesBurned,
		Notes:           req.Notes,
	}
	if req.ActivityDate != "" {
		t, err := parseTime(req.ActivityDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "activity_date: "+err.Error())
			return
		}
		in.ActivityDate = &t
	}

	a, err := h.svc.Ledger.Append(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activityView(*a))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := ledger.Query{Limit: queryLimit(r)}
	if raw := params.Get("since"); raw != "" {
		since, err := parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "since: "+err.Error())
			return
		}
		q.Since = &since
	}
	if raw := params.Get("cursor"); raw != "" {
		c, err := persistence.DecodeCursor(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "cursor: "+err.Error())
			return
		}
		q.Cursor = c
	}

	page, err := h.svc.Ledger.List(r.Context(), caller(r), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := activityPage{Items: make([]ActivityView, 0, len(page.Items))}
	for _, a := range page.Items {
		out.Items = append(out.Items, activityView(a))
	}
	if page.Next != nil {
		token := persistence.EncodeCursor(page.Next)
		out.NextCursor = &token
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Ledger.Get(r.Context(), caller(r), chi.URLParam(r, "activityID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityView(*a))
}

func (h *Handler) voidActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.Ledger.Void(r.Context(), chi.URLParam(r, "activityID"), req.Reason, caller(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityView(*a))
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Ledger.Stats(r.Context(), caller(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) userLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Rankings.UserLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

type createActivityTypeRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	PointsPerMinute json.RawMessage `json:"points_per_minute"`
	Icon            string          `json:"icon"`
}

func (h *Handler) listActivityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) createActivityType(w http.ResponseWriter, r *http.Request) {
	var req createActivityTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var rate domain.Rate
	if len(req.PointsPerMinute) == 0 {
		writeDomainError(w, r, domain.NewValidationError("points_per_minute", domain.CodeInvalidRate, "points_per_minute is required"))
		return
	}
	if err := rate.UnmarshalJSON(req.PointsPerMinute); err != nil {
		writeDomainError(w, r, domain.NewValidationError("points_per_minute", domain.CodeInvalidRate, err.Error()))
		return
	}

	created, err := h.svc.Catalog.Add(r.Context(), domain.ActivityType{
		ID:              strings.TrimSpace(req.ID),
		Name:            req.Name,
		Description:     req.Description,
		PointsPerMinute: rate,
		Icon:            req.Icon,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteActivityType(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Catalog.Remove(r.Context(), chi.URLParam(r, "typeID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

