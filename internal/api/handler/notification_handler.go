package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-relay/internal/api/middleware"
	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/service"
)

const msgAccepted = "Notificação enviada para processamento"

// NotificationHandler handles intake and status queries.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

type submitResponse struct {
	ID      string        `json:"mensagemId"`
	Status  domain.Status `json:"status"`
	Message string        `json:"message"`
}

type statusResponse struct {
	ID     string        `json:"mensagemId"`
	Status domain.Status `json:"status"`
}

type listResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// Submit handles POST /notificar
//
// @Summary     Submit a notification for asynchronous processing
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.CreateNotificationRequest  true  "Notification payload"
// @Success     201   {object}  submitResponse
// @Failure     400   {object}  errorResponse
// @Failure     500   {object}  errorResponse
// @Router      /notificar [post]
func (h *NotificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	n, err := h.svc.Submit(r.Context(), req.ID, req.Content)
	if err != nil {
		h.logger.Warn("submit notification failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("mensagem_id", req.ID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, submitResponse{
		ID:      n.ID,
		Status:  n.Status,
		Message: msgAccepted,
	})
}

// Status handles GET /notificacao/status/{mensagemId}
//
// Unknown ids are not an error: they answer 200 with status NOT_FOUND.
//
// @Summary  Poll the processing status of a notification
// @Tags     notifications
// @Produce  json
// @Param    mensagemId  path      string  true  "Notification id"
// @Success  200         {object}  statusResponse
// @Router   /notificacao/status/{mensagemId} [get]
func (h *NotificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "mensagemId")
	status, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		h.logger.Error("status lookup failed", zap.String("mensagem_id", id), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}

// Get handles GET /notificacao/{mensagemId}
//
// @Summary  Get the full notification record
// @Tags     notifications
// @Produce  json
// @Param    mensagemId  path      string  true  "Notification id"
// @Success  200         {object}  domain.Notification
// @Failure  404         {object}  errorResponse
// @Router   /notificacao/{mensagemId} [get]
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "mensagemId"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// List handles GET /notificacoes
//
// @Summary  List every tracked notification, newest first
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  listResponse
// @Router   /notificacoes [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		mapError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*domain.Notification{}
	}
	respondJSON(w, http.StatusOK, listResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// Clear handles DELETE /notificacao/{mensagemId}
//
// @Summary  Forget a notification record
// @Tags     notifications
// @Param    mensagemId  path      string  true  "Notification id"
// @Success  204
// @Failure  404  {object}  errorResponse
// @Router   /notificacao/{mensagemId} [delete]
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context(), chi.URLParam(r, "mensagemId")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
