package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/pkg/rest"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c controller) bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}

	return r.URL.Query().Get("token")
}

func (c controller) errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine readable code of an error frame.
func (c controller) errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalid),
		errors.Is(err, wsrouter.ErrInvalidPayload),
		errors.Is(err, wsrouter.ErrUnknownMessageType):
		return "invalid"
	default:
		return "internal"
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := c.errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
		message = http.StatusText(status)
	}

	rest.WriteJSON(w, status, rest.Envelope{"error": message})
}

func (c controller) writeValidationErrors(w http.ResponseWriter, errs []validator.ValidationError) {
	rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": errs})
}
