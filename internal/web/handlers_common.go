package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/rowstore/internal/core"
)

// maxAliasBody bounds the JSON alias list accepted by the alias handlers.
const maxAliasBody = 64 << 10

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// baseURL returns the configured public URL, or one derived from the request.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.Server.BaseURL != "" {
		return strings.TrimRight(s.cfg.Server.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// DatasetDescriptor is returned when an upload is accepted.
type DatasetDescriptor struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Info   string      `json:"info"`
	Status core.Status `json:"status"`
}

// writeAccepted answers an accepted upload with 202, the descriptor and a
// Location header pointing at the dataset.
func (s *Server) writeAccepted(w http.ResponseWriter, r *http.Request, ds *core.Dataset) {
	url := s.baseURL(r) + "/dataset/" + ds.ID
	w.Header().Set("Location", url)
	writeJSON(w, http.StatusAccepted, DatasetDescriptor{
		ID:     ds.ID,
		URL:    url,
		Info:   url + "/info",
		Status: ds.Status,
	})
}

// decodeAliasList reads a JSON array of alias names.
func decodeAliasList(w http.ResponseWriter, r *http.Request) ([]string, error) {
	var names []string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAliasBody))
	if err := dec.Decode(&names); err != nil {
		return nil, errInvalidAliasList
	}
	if names == nil {
		return nil, errInvalidAliasList
	}
	return names, nil
}
