package api

import (
	"net/http"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/profile"
)

type updateProfileRequest struct {
	FitnessLevel *domain.FitnessLevel `json:"fitness_level"`
	Bio          *string              `json:"bio"`
	FitnessGoal  *string              `json:"fitness_goal"`
}

// getProfile reconciles the caller before answering so a diverged total is
// never served.
func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID := caller(r)
	if err := h.svc.Profiles.ReconcileUser(r.Context(), userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Profiles.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.Profiles.Update(r.Context(), caller(r), profile.Update{
		FitnessLevel: req.FitnessLevel,
		Bio:          req.Bio,
		FitnessGoal:  req.FitnessGoal,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type reconcileResponse struct {
	Type   string                  `json:"type,omitempty"`
	Faults []domain.IntegrityFault `json:"faults"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	faults, err := h.svc.Profiles.Reconcile(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if len(faults) > 0 {
		writeJSON(w, http.StatusInternalServerError, reconcileResponse{Type: "integrity_fault", Faults: faults})
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Faults: []domain.IntegrityFault{}})
}
