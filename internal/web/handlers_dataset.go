package web

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rowstore/internal/core"
)

// handleQuery filters and paginates the rows of a dataset.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Query(r.Context(), chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAppend queues rows to be appended to the dataset.
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.service.AppendDataset)
}

// handleReplace queues a replacement of the dataset contents.
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.service.ReplaceDataset)
}

type mutation func(ctx context.Context, idOrAlias string, body io.Reader, contentType string) (*core.Dataset, error)

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, apply mutation) {
	ctx := WithRequestMetadata(r.Context(), r)

	ds, err := apply(ctx, chi.URLParam(r, "id"), r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeAccepted(w, r, ds)
}

// handleDelete removes the dataset and its aliases.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDataset(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInfo returns the dataset metadata.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Info(chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleExportCSV streams the dataset as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.Dataset(chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ds.ID+`.csv"`)

	if err := s.service.ExportCSV(ds.ID, w); err != nil {
		w.Header().Del("Content-Disposition")
		serviceError(w, r, err)
	}
}
