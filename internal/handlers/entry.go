package handlers

import (
	"net/http"

	"doorman/internal/config"
)

// EntryHandler answers every request routed to it with 302 Found pointing at
// the configured entry page. Method, path, headers, and body are all ignored:
// there is exactly one behavior for all inputs.
//
// The Location header is written verbatim instead of going through
// http.Redirect, which would resolve a relative target against the request
// path and produce a different value per request.
func EntryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Location", config.Get().Entry.Target)
	w.WriteHeader(http.StatusFound)
}
