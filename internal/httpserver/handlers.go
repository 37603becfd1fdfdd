package httpserver

import (
	"context"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/skip2/go-qrcode"

	"oncepaste/internal/id"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("read request body", "error", err, "request_id", middleware.GetReqID(r.Context()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !utf8.Valid(body) {
		s.logger.Warn("rejected paste that is not valid utf-8", "request_id", middleware.GetReqID(r.Context()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	key, err := s.pastes.Create(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, key)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	content, err := s.pastes.Fetch(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeText(w, http.StatusOK, content)
}

// handleQR renders the fetch URL for key. It never touches the store, so it
// can neither consume a paste nor reveal whether one exists.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !id.Valid(key) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	png, err := qrcode.Encode(s.fetchURL(r, key), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("encode qr code", "error", err, "request_id", middleware.GetReqID(r.Context()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeText(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
