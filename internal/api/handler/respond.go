package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// User-facing messages. Internal error text never reaches the client.
const (
	msgEmptyContent = "Conteúdo da mensagem não pode ser vazio"
	msgEmptyID      = "ID da mensagem é obrigatório"
	msgInvalidBody  = "Corpo da requisição inválido"
	msgNotFound     = "Notificação não encontrada"
	msgInternal     = "Erro interno do servidor"
)

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{StatusCode: status, Message: msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyContent):
		respondError(w, http.StatusBadRequest, msgEmptyContent)
	case errors.Is(err, domain.ErrEmptyID):
		respondError(w, http.StatusBadRequest, msgEmptyID)
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusBadRequest, msgInvalidBody)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, msgNotFound)
	default:
		// Publish failures, an unreachable broker and store outages alike.
		respondError(w, http.StatusInternalServerError, msgInternal)
	}
}
