package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListAliases returns the aliases of a dataset as a JSON array.
func (s *Server) handleListAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := s.service.Aliases(chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aliases)
}

func (s *Server) handleAddAliases(w http.ResponseWriter, r *http.Request) {
	names, err := decodeAliasList(w, r)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if _, err := s.service.AddAliases(r.Context(), chi.URLParam(r, "id"), names); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceAliases(w http.ResponseWriter, r *http.Request) {
	names, err := decodeAliasList(w, r)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if _, err := s.service.ReplaceAliases(r.Context(), chi.URLParam(r, "id"), names); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAliases(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAliases(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
