package server

import (
	"encoding/json"
	"net/http"

	"github.com/cairndb/cairn/core/db"
	"github.com/cairndb/cairn/internal/logging"
)

// BatchHandler serves POST /batch: decode one batchEnvelope, run it against
// database, and reply with its batchResult (SPEC_FULL.md §2's "one HTTP
// endpoint (POST /batch)").
func BatchHandler(database *db.Database) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var env batchEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		result := runBatch(database, env, r)
		for name, value := range result.Headers {
			w.Header().Set(name, value)
		}
		w.Header().Set("Content-Type", "application/json")
		if result.Error != "" {
			logging.Error("batch failed", "error", result.Error)
		}
		w.WriteHeader(result.Status)
		_ = json.NewEncoder(w).Encode(result)
	})
}
