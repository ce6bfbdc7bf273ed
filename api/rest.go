package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) registerREST(mux *http.ServeMux) {
	mux.HandleFunc("GET /blocks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.state.Snapshot())
	})

	mux.HandleFunc("GET /validate", func(w http.ResponseWriter, r *http.Request) {
		validity := s.state.Snapshot().Validity
		valid := true
		for _, ok := range validity {
			valid = valid && ok
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "validity": validity})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.state.Stats()
		if err != nil {
			s.logger.Error("Failed to read mining stats", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
