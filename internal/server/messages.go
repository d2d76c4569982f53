package server

import (
	"context"
	"errors"

	"collabtext/internal/document"
	"collabtext/internal/ot"
)

// ClientMessage is the client-to-server wire form: an insert or delete
// issued against clientVersion.
type ClientMessage struct {
	Type          string `json:"type"`
	Position      int    `json:"position"`
	Text          string `json:"text,omitempty"`
	Length        int    `json:"length,omitempty"`
	ClientVersion int    `json:"clientVersion"`
	ClientID      string `json:"clientId"`
	RequestID     string `json:"requestId"`
}

// Operation maps the message onto an edit operation, rejecting malformed
// payloads before they reach a coordinator.
func (m ClientMessage) Operation() (ot.Operation, error) {
	return ot.FromWire(m.Type, m.Position, m.Text, m.Length)
}

// ErrorMessage is the explicit negative acknowledgment for a rejected or
// failed submission. Rejections are never silently dropped.
type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Error codes on the wire.
const (
	codeValidation   = "validation"
	codeStaleVersion = "staleVersion"
	codePersistence  = "persistence"
	codeUnsupported  = "unsupportedOperation"
	codeTimeout      = "timeout"
	codeInternal     = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, document.ErrValidation):
		return codeValidation
	case errors.Is(err, document.ErrStaleVersion):
		return codeStaleVersion
	case errors.Is(err, document.ErrPersistence):
		return codePersistence
	case errors.Is(err, document.ErrUnsupportedOperation):
		return codeUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	default:
		return codeInternal
	}
}
