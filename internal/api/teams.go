package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/membership"
	"example.com/octofit/internal/ranking"
)

// TeamView is the wire form of a team. TotalPoints is derived from the
// members' ledgers at read time.
type TeamView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	CreatedBy   string              `json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
	MaxMembers  int                 `json:"max_members"`
	MemberCount int                 `json:"member_count"`
	TotalPoints int64               `json:"total_points"`
	Members     []domain.Membership `json:"members"`
}

type membershipResponse struct {
	Message string   `json:"message"`
	Team    TeamView `json:"team"`
}

func teamView(t domain.Team, points map[string]int64) TeamView {
	members := t.Members
	if members == nil {
		members = []domain.Membership{}
	}
	return TeamView{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		MaxMembers:  t.MaxMembers,
		MemberCount: t.MemberCount(),
		TotalPoints: ranking.TeamPoints(t, points),
		Members:     members,
	}
}

// teamViews renders zero totals when the points read fails.
func (h *Handler) teamViews(ctx context.Context, teams []domain.Team) []TeamView {
	points, err := h.svc.Rankings.UserPoints(ctx)
	if err != nil {
		log.Warn().Err(err).Int("teams", len(teams)).Msg("team totals unavailable")
		points = map[string]int64{}
	}
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, teamView(t, points))
	}
	return out
}

func (h *Handler) writeTeam(w http.ResponseWriter, r *http.Request, status int, message string, t *domain.Team) {
	view := h.teamViews(r.Context(), []domain.Team{*t})[0]
	if message == "" {
		writeJSON(w, status, view)
		return
	}
	writeJSON(w, status, membershipResponse{Message: message, Team: view})
}

func (h *Handler) writeTeams(w http.ResponseWriter, r *http.Request, teams []domain.Team) {
	writeJSON(w, http.StatusOK, h.teamViews(r.Context(), teams))
}

type createTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxMembers  *int   `json:"max_members"`
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.svc.Teams.CreateTeam(r.Context(), membership.NewTeam{
		Name:        req.Name,
		Description: req.Description,
		MaxMembers:  req.MaxMembers,
		CreatedBy:   caller(r),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeam(w, r, http.StatusCreated, "", t)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.Teams.ListTeams(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeams(w, r, teams)
}

func (h *Handler) myTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.Teams.ListUserTeams(r.Context(), caller(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeams(w, r, teams)
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Teams.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeam(w, r, http.StatusOK, "", t)
}

func (h *Handler) joinTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Teams.Join(r.Context(), chi.URLParam(r, "teamID"), caller(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeam(w, r, http.StatusOK, "joined team "+t.Name, t)
}

func (h *Handler) leaveTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Teams.Leave(r.Context(), chi.URLParam(r, "teamID"), caller(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeTeam(w, r, http.StatusOK, "left team "+t.Name, t)
}

func (h *Handler) teamLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Rankings.TeamLeaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
