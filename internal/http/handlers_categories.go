package http

import (
	"encoding/json"
	"net/http"

	"budgetbook/internal/auth"
	"budgetbook/internal/core"
)

type categoryResponse struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cats, err := s.ledger.ListCategories(r.Context(), userID)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = categoryResponse{Name: c.Name, Icon: c.Icon}
	}
	respondJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Icon == "" {
		req.Icon = core.DefaultCategoryIcon
	}

	err := s.ledger.CreateCategory(r.Context(), core.Category{
		UserID: userID,
		Name:   req.Name,
		Icon:   req.Icon,
	})
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, categoryResponse{Name: req.Name, Icon: req.Icon})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := r.PathValue("name")

	if err := s.ledger.DeleteCategory(r.Context(), userID, name); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
