package server

import (
	"net/http"

	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/pkg/httperr"
)

// writeFault maps a structured failure onto the transport: the short stable
// title becomes the envelope code and the detail its message.
func writeFault(w http.ResponseWriter, r *http.Request, rc routing.RouteClass, err error) {
	if httperr.IsBadRequest(err) {
		routing.WriteError(w, r, rc, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}
	fe, ok := httperr.AsError(err)
	if !ok {
		routing.WriteError(w, r, rc, http.StatusInternalServerError, "Internal error", "unexpected error")
		return
	}
	status := http.StatusInternalServerError
	switch {
	case httperr.IsNotFound(err):
		status = http.StatusNotFound
	case httperr.IsConflict(err):
		status = http.StatusConflict
	case httperr.IsUnauthorized(err):
		status = http.StatusUnauthorized
	}
	routing.WriteError(w, r, rc, status, fe.Title(), fe.Detail())
}
