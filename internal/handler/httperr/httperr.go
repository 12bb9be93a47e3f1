// Package httperr maps service errors onto HTTP responses.
package httperr

import (
	"errors"
	"log"
	"net/http"

	chatsvc "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/companion"
	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, chatsvc.ErrIdentityRequired):
		return http.StatusUnauthorized
	case errors.Is(err, chatsvc.ErrOwnership), errors.Is(err, chatsvc.ErrConsentForbidden):
		return http.StatusForbidden
	case errors.Is(err, chatsvc.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatsvc.ErrInvalidTone),
		errors.Is(err, chatsvc.ErrInvalidLanguage),
		errors.Is(err, companion.ErrEmptyMessage),
		errors.Is(err, companion.ErrMessageTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for err. Internal errors are not exposed.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// Respond writes err as a JSON error body.
func Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	switch status {
	case http.StatusInternalServerError:
		log.Printf("[http] %s %s failed: %v", r.Method, r.URL.Path, err)
	case http.StatusForbidden:
		log.Printf("[audit] forbidden %s %s: %v", r.Method, r.URL.Path, err)
	}
	utils.RespondError(w, status, Message(err))
}
