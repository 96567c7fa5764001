package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrValidation   = errors.New("validation failed")
	ErrEmptyID      = fmt.Errorf("%w: mensagemId must not be empty", ErrValidation)
	ErrEmptyContent = fmt.Errorf("%w: conteudoMensagem must not be empty", ErrValidation)

	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition: notification already finished")

	ErrPublish            = errors.New("publish failed")
	ErrChannelUnavailable = errors.New("broker channel unavailable")
	ErrQueueFull          = errors.New("queue is at capacity, try again later")
	ErrMalformedMessage   = errors.New("malformed queue message")
)
