package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"oncepaste/internal/paste"
)

// errorResponse maps a paste error to the status and body sent to the
// client. Only NotFound carries a body; every other failure stays server-side.
func errorResponse(err error) (int, string) {
	switch paste.KindOf(err) {
	case paste.KindNotFound:
		return http.StatusNotFound, err.Error()
	case paste.KindStore:
		return http.StatusInternalServerError, ""
	case paste.KindConnectionTimeout:
		return http.StatusInternalServerError, ""
	case paste.KindDecode:
		return http.StatusBadRequest, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if !paste.IsNotFound(err) {
		s.logger.Error("paste operation failed",
			"error", err,
			"kind", paste.KindOf(err).String(),
			"status", status,
			"request_id", middleware.GetReqID(r.Context()))
	}
	if body == "" {
		w.WriteHeader(status)
		return
	}
	writeText(w, status, body)
}
