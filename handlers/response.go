package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fitQuestAPI/internal/stats"
	"fitQuestAPI/internal/store"
	"fitQuestAPI/middleware"
	"fitQuestAPI/services"
	"fitQuestAPI/utils"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps engine errors onto HTTP status codes.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stats.ErrInvalidEvent), services.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case services.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, err.Error())
	case services.IsConcurrentUpdate(err):
		respondWithError(w, http.StatusConflict, "Concurrent update, retry the request")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		utils.Logger.Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func userIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["userID"])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// resolveUser maps the authenticated Clerk subject onto the user id, writing
// the error response itself when it cannot.
func resolveUser(w http.ResponseWriter, r *http.Request, users ClerkResolver) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	userID, err := users.ResolveClerkUser(r.Context(), clerkID)
	if errors.Is(err, store.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "User not found")
		return uuid.Nil, false
	} else if err != nil {
		respondWithServiceError(w, r, err)
		return uuid.Nil, false
	}
	return userID, true
}
