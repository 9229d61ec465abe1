package web

import "net/http"

// handleStatus reports the service identity and ingestion load.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleListDatasets returns every dataset id in creation order.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListDatasets())
}

// handleCreateDataset accepts a CSV body and starts its ingestion.
func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)

	ds, err := s.service.CreateDataset(ctx, r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeAccepted(w, r, ds)
}
