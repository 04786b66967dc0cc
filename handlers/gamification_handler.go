package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fitQuestAPI/internal/personalrecord"
	"fitQuestAPI/internal/stats"
	"fitQuestAPI/services"
)

const maxEventBody = 64 << 10

type GamificationHandler struct {
	game    *services.GamificationService
	records *services.PersonalRecordService
}

func NewGamificationHandler(game *services.GamificationService, records *services.PersonalRecordService) *GamificationHandler {
	return &GamificationHandler{
		game:    game,
		records: records,
	}
}

// ApplyEvent handles POST /internal/v1/users/{userID}/events.
func (h *GamificationHandler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ev, err := stats.Decode(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.game.ProcessEvent(ctx, userID, ev)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}

type recordSetRequest struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	personalrecord.Sample
}

// RecordSet handles POST /internal/v1/users/{userID}/personal-records.
func (h *GamificationHandler) RecordSet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req recordSetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ExerciseID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "exercise_id is required")
		return
	}

	result, err := h.records.RecordSet(ctx, userID, req.ExerciseID, req.Sample)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Recheck handles POST /internal/v1/users/{userID}/recheck.
func (h *GamificationHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	outcome, err := h.game.Recheck(ctx, userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}
