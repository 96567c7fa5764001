package domain

import (
	"strings"
	"time"
)

// Status tracks the lifecycle of a notification. The values are the exact
// strings exchanged with clients and written to the status queue.
type Status string

const (
	StatusPending Status = "AGUARDANDO_PROCESSAMENTO"
	StatusSuccess Status = "PROCESSADO_SUCESSO"
	StatusFailure Status = "FALHA_PROCESSAMENTO"

	// StatusNotFound is only ever returned by lookups, never stored.
	StatusNotFound Status = "NOT_FOUND"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// IsStorable reports whether s may be held by a record in the status store.
func (s Status) IsStorable() bool {
	return s == StatusPending || s.IsTerminal()
}

// Notification is the record kept in the status store, one per id.
type Notification struct {
	ID        string    `json:"mensagemId"`
	Content   string    `json:"conteudoMensagem"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanTransitionTo reports whether the record may move to next.
// Only PENDING -> SUCCESS and PENDING -> FAILURE are legal.
func (n *Notification) CanTransitionTo(next Status) bool {
	return n.Status == StatusPending && next.IsTerminal()
}

// CreateNotificationRequest is the inbound payload of POST /notificar.
type CreateNotificationRequest struct {
	ID      string `json:"mensagemId"`
	Content string `json:"conteudoMensagem"`
}

// Validate rejects empty or whitespace-only fields. Content is checked
// first so a request missing both reports the content problem.
func (r *CreateNotificationRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	return nil
}

// QueueMessage is the payload published to the inbound queue.
type QueueMessage struct {
	ID        string    `json:"mensagemId"`
	Content   string    `json:"conteudoMensagem"`
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID ties the message to the HTTP request that submitted it.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Validate is applied by the worker after decoding; a message that fails it
// is treated as malformed.
func (m *QueueMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrEmptyID
	}
	return nil
}

// StatusEvent is published to the status queue once a decision is made.
// It is not stored; external observers consume it.
type StatusEvent struct {
	ID            string    `json:"mensagemId"`
	Status        Status    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// Stats is a per-status snapshot of the status store.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"aguardando"`
	Success int `json:"sucesso"`
	Failure int `json:"falha"`
}
