package endpoints

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/rotation"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

// toAPIError maps engine and store errors to HTTP statuses. Unexpected errors
// are logged and reported without detail.
func toAPIError(err error, what string) *api.APIError {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return &api.APIError{Code: http.StatusNotFound, Message: what + " not found"}
	case errors.Is(err, scheduler.ErrInvalidRequest), errors.Is(err, rotation.ErrInvalidArgument):
		return &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, scheduler.ErrBuildInProgress):
		return &api.APIError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, scheduler.ErrTransientStore), db.IsTransient(err):
		log.Warn().Err(err).Str("resource", what).Msg("store unavailable")
		return &api.APIError{Code: http.StatusServiceUnavailable, Message: "store unavailable, retry later"}
	}
	log.Error().Err(err).Str("resource", what).Msg("request failed")
	return &api.APIError{Code: http.StatusInternalServerError, Message: "could not process " + what}
}

func badRequest(msg string) *api.APIError {
	return &api.APIError{Code: http.StatusBadRequest, Message: msg}
}
