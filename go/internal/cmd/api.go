package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mlutz/spieltag/go/internal/match"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// The HTTP surface is a thin adapter: every route maps one-to-one onto an
// engine operation, and all policy lives below in the match and live
// packages.

func registerRoutes(mux *http.ServeMux, s *Services) {
	h := &apiHandlers{s: s}

	mux.HandleFunc("GET /ws/{tournament}", h.websocket)

	mux.HandleFunc("POST /tournaments/{tournament}/matches", h.createMatch)
	mux.HandleFunc("GET /tournaments/{tournament}/matches", h.listMatches)
	mux.HandleFunc("POST /tournaments/{tournament}/matches/{match}/start", h.requestStart)
	mux.HandleFunc("POST /tournaments/{tournament}/matches/{match}/handover", h.confirmHandover)

	mux.HandleFunc("GET /matches/{match}", h.getMatch)
	mux.HandleFunc("POST /matches/{match}/pause", h.matchOp((*match.App).Pause))
	mux.HandleFunc("POST /matches/{match}/resume", h.matchOp((*match.App).Resume))
	mux.HandleFunc("POST /matches/{match}/finish", h.matchOp((*match.App).Finish))
	mux.HandleFunc("POST /matches/{match}/skip", h.matchOp((*match.App).Skip))
	mux.HandleFunc("POST /matches/{match}/events", h.appendEvent)
	mux.HandleFunc("DELETE /matches/{match}/events/last", h.undoLast)
	mux.HandleFunc("POST /matches/{match}/captures", h.openCapture)
	mux.HandleFunc("POST /matches/{match}/captures/confirm", h.confirmCapture)
	mux.HandleFunc("DELETE /matches/{match}/captures", h.cancelCapture)

	mux.HandleFunc("GET /sync/pending", h.pendingSync)
}

type apiHandlers struct {
	s *Services
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(name))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, match.ErrNoOpenCapture):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case match.IsInvalidTransition(err),
		errors.Is(err, match.ErrAnotherMatchRunning),
		errors.Is(err, match.ErrCaptureAlreadyResolved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *apiHandlers) websocket(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := pathUUID(r, "tournament")
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	h.s.Gateway.HandleWebSocket(w, r, tournamentID)
}

type createMatchBody struct {
	ID         string `json:"id"`
	HomeTeamID string `json:"home_team_id"`
	AwayTeamID string `json:"away_team_id"`
	Status     string `json:"status"`
}

func (h *apiHandlers) createMatch(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := pathUUID(r, "tournament")
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	var body createMatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	req := match.CreateMatchRequest{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Status:       models.MatchStatus(body.Status),
	}
	if body.ID != "" {
		if req.ID, err = uuid.Parse(body.ID); err != nil {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}
	}
	if req.HomeTeamID, err = uuid.Parse(body.HomeTeamID); err != nil {
		http.Error(w, "invalid home team id", http.StatusBadRequest)
		return
	}
	if req.AwayTeamID, err = uuid.Parse(body.AwayTeamID); err != nil {
		http.Error(w, "invalid away team id", http.StatusBadRequest)
		return
	}

	m, err := h.s.Matches.CreateMatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *apiHandlers) listMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := pathUUID(r, "tournament")
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	matches, err := h.s.Matches.ListMatches(r.Context(), tournamentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (h *apiHandlers) getMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	m, err := h.s.Matches.GetMatch(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	elapsed := h.s.Matches.Timer().ElapsedSeconds(m)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match":           m,
		"elapsed_seconds": elapsed,
	})
}

// requestStart asks the coordinator to start a match. A live conflict comes
// back as 409 with the running match so the UI can prompt for the handover.
func (h *apiHandlers) requestStart(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := pathUUID(r, "tournament")
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	result, err := h.s.Coordinator.RequestStart(r.Context(), tournamentID, matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Conflict != nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"conflict": true,
			"running":  result.Conflict.Running,
		})
		return
	}
	writeJSON(w, http.StatusOK, result.Started)
}

func (h *apiHandlers) confirmHandover(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := pathUUID(r, "tournament")
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	m, err := h.s.Coordinator.ConfirmHandover(r.Context(), tournamentID, matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *apiHandlers) matchOp(op func(*match.App, context.Context, uuid.UUID) (*models.Match, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID, err := pathUUID(r, "match")
		if err != nil {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}
		m, err := op(h.s.Matches, r.Context(), matchID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

type appendEventBody struct {
	Type      string `json:"type"`
	TeamID    string `json:"team_id"`
	PlayerRef *int   `json:"player_ref"`
}

func (h *apiHandlers) appendEvent(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	var body appendEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	in := match.EventInput{
		Type:      models.MatchEventType(body.Type),
		PlayerRef: body.PlayerRef,
	}
	if body.TeamID != "" {
		teamID, err := uuid.Parse(body.TeamID)
		if err != nil {
			http.Error(w, "invalid team id", http.StatusBadRequest)
			return
		}
		in.TeamID = &teamID
	}

	ev, err := h.s.Matches.AppendEvent(r.Context(), matchID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

type openCaptureBody struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
}

// openCapture starts the grace window for a scoring event. The response
// carries the match clock value the eventual event will be stamped with; the
// window commits on confirm or on timeout, whichever comes first.
func (h *apiHandlers) openCapture(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	var body openCaptureBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	in := match.EventInput{Type: models.MatchEventType(body.Type)}
	if body.TeamID != "" {
		teamID, err := uuid.Parse(body.TeamID)
		if err != nil {
			http.Error(w, "invalid team id", http.StatusBadRequest)
			return
		}
		in.TeamID = &teamID
	}

	c, err := h.s.Matches.OpenCapture(r.Context(), matchID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"at_seconds": c.AtSeconds(),
	})
}

type confirmCaptureBody struct {
	PlayerRef *int `json:"player_ref"`
}

func (h *apiHandlers) confirmCapture(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	var body confirmCaptureBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.s.Matches.ConfirmCapture(matchID, body.PlayerRef); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) cancelCapture(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	if err := h.s.Matches.CancelCapture(matchID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) undoLast(w http.ResponseWriter, r *http.Request) {
	matchID, err := pathUUID(r, "match")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	ev, err := h.s.Matches.UndoLast(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ev == nil {
		// Empty log: undo is a no-op, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// pendingSync exposes the queued mutations behind the "not yet synced"
// indicator. Local-only deployments report an empty queue.
func (h *apiHandlers) pendingSync(w http.ResponseWriter, r *http.Request) {
	if h.s.SyncWorker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"pending": []models.SyncQueueEntry{},
		})
		return
	}
	entries, err := h.s.SyncWorker.PendingEntries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.SyncQueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": entries})
}
