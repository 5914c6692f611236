// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/xscontrol/pkg/httpx"
	"github.com/ghuser/xscontrol/pkg/model"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, mapErrorToStatus(err), err.Error())
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrEdgeNotFound),
		errors.Is(err, model.ErrCommandNotFound),
		errors.Is(err, model.ErrPluginNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized // 401
	case errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, model.ErrRulesPushRejected):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, model.ErrBadRequest):
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}
