package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/manpreetbhatti/codecollab/internal/ws"
)

// Router builds the full HTTP surface, WebSocket endpoint included
func (a *API) Router(allowedOrigin string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(a.hub, w, req)
	})

	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/run", a.RunHandler).Methods(http.MethodPost)

	r.HandleFunc("/api/rooms", a.ListRoomsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/versions/{roomId}", a.ListVersionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/versions/{roomId}/diff", a.DiffVersionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{roomId}", a.GetRoomHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		errorResponse(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return corsMiddleware(allowedOrigin, r)
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
