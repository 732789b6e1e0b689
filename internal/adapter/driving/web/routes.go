package web

import "net/http"

// RegisterRoutes registers all web GUI routes on the provided mux.
// The connections page is served at / and, for post-auth landings, /dashboard.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /dashboard", h.Dashboard)
}
