package handlers

import (
	"net/http"

	"doorman/internal/database"
)

// HealthHandler reports liveness. The database only backs certificate
// storage, so a failing ping degrades health but an unopened database does
// not.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := database.HealthCheck(); err != nil {
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
