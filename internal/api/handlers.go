package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
	"github.com/manpreetbhatti/codecollab/internal/ratelimit"
	"github.com/manpreetbhatti/codecollab/internal/room"
	"github.com/manpreetbhatti/codecollab/internal/runner"
	"github.com/manpreetbhatti/codecollab/internal/versions"
	"github.com/manpreetbhatti/codecollab/internal/ws"
)

const maxRunBody = 1024 * 1024

type API struct {
	hub      *ws.Hub
	rooms    *room.Registry
	runner   runner.Runner
	limiters *ratelimit.ClientLimiters
}

// New wires the HTTP surface. A nil runner disables /api/run and a nil
// limiter set lets every run through.
func New(hub *ws.Hub, run runner.Runner, limiters *ratelimit.ClientLimiters) *API {
	if run == nil {
		run = runner.Disabled{}
	}
	return &API{
		hub:      hub,
		rooms:    hub.Rooms(),
		runner:   run,
		limiters: limiters,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms":          a.rooms.Len(),
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Room handlers

type RoomResponse struct {
	ID           string          `json:"id"`
	ActiveUsers  int             `json:"active_users"`
	VersionCount int             `json:"version_count"`
	Users        []protocol.User `json:"users,omitempty"`
	Code         *string         `json:"code,omitempty"`
}

func (a *API) describeRoom(r *http.Request, rm *room.Room, detail bool) RoomResponse {
	resp := RoomResponse{
		ID:          rm.ID,
		ActiveUsers: rm.MemberCount(),
	}
	if n, err := rm.VersionCount(r.Context()); err == nil {
		resp.VersionCount = n
	} else {
		log.Printf("Failed to count versions for room %s: %v", rm.ID, err)
	}
	if detail {
		resp.Users = rm.Users()
		text := rm.Text()
		resp.Code = &text
	}
	return resp
}

// ListRoomsHandler lists rooms currently held in memory
func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	live := a.rooms.Rooms()
	response := make([]RoomResponse, 0, len(live))
	for _, rm := range live {
		response = append(response, a.describeRoom(r, rm, false))
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": response,
		"total": len(response),
	})
}

// GetRoomHandler describes one live room. It never creates the room.
func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	rm, ok := a.rooms.Get(roomID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	jsonResponse(w, http.StatusOK, a.describeRoom(r, rm, true))
}

// Version handlers

// ListVersionsHandler returns a room's saved snapshots, newest first. Asking
// about an unknown room creates it, matching what a join would do.
func (a *API) ListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	history, err := a.rooms.GetOrCreate(roomID).Versions(r.Context())
	if err != nil {
		log.Printf("Failed to list versions for room %s: %v", roomID, err)
		errorResponse(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}
	if history == nil {
		history = []versions.Snapshot{}
	}
	jsonResponse(w, http.StatusOK, history)
}

type diffSide struct {
	Index   *int       `json:"index,omitempty"`
	SavedAt *time.Time `json:"savedAt,omitempty"`
	Current bool       `json:"current,omitempty"`
}

// DiffVersionsHandler diffs two snapshots by history index (0 is the newest).
// Without "to" the room's current text is the right-hand side.
func (a *API) DiffVersionsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	fromIdx, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil || fromIdx < 0 {
		errorResponse(w, http.StatusBadRequest, "Invalid 'from' version index")
		return
	}
	toIdx := -1
	if raw := r.URL.Query().Get("to"); raw != "" {
		toIdx, err = strconv.Atoi(raw)
		if err != nil || toIdx < 0 {
			errorResponse(w, http.StatusBadRequest, "Invalid 'to' version index")
			return
		}
	}

	rm := a.rooms.GetOrCreate(roomID)
	history, err := rm.Versions(r.Context())
	if err != nil {
		log.Printf("Failed to list versions for room %s: %v", roomID, err)
		errorResponse(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}

	if fromIdx >= len(history) {
		errorResponse(w, http.StatusNotFound, "From version not found")
		return
	}
	from := history[fromIdx]
	fromSide := diffSide{Index: &fromIdx, SavedAt: &from.SavedAt}

	var toCode string
	var toSide diffSide
	if toIdx < 0 {
		toCode = rm.Text()
		toSide.Current = true
	} else {
		if toIdx >= len(history) {
			errorResponse(w, http.StatusNotFound, "To version not found")
			return
		}
		to := history[toIdx]
		toCode = to.Code
		toSide = diffSide{Index: &toIdx, SavedAt: &to.SavedAt}
	}

	diff, err := computeDiff(from.Code, toCode)
	if err != nil {
		errorResponse(w, http.StatusUnprocessableEntity, "Versions are too large to diff")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"from": fromSide,
		"to":   toSide,
		"diff": diff,
	})
}

// Execution

type runRequest struct {
	Code *string `json:"code"`
}

// RunHandler forwards code to the configured runner. It never touches
// room state.
func (a *API) RunHandler(w http.ResponseWriter, r *http.Request) {
	if a.limiters != nil && !a.limiters.Allow(clientIP(r)) {
		errorResponse(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBody)).Decode(&req); err != nil || req.Code == nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := a.runner.Run(r.Context(), *req.Code)
	if err != nil {
		if !errors.Is(err, runner.ErrDisabled) {
			log.Printf("Execution failed: %v", err)
		}
		jsonResponse(w, http.StatusBadGateway, map[string]string{
			"output": "Execution failed.",
			"error":  err.Error(),
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"output":   res.Output,
		"exitCode": res.ExitCode,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
