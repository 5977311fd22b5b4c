package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Coldaine/ShortcutSage/internal/daemon"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	suggestions, err := s.daemon.SendEventJSON(body)
	if err != nil {
		if errors.Is(err, daemon.ErrBadEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Rule   string `json:"rule"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.daemon.Accept(req.Action, req.Rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action := model.CanonicalAction(req.Action)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"action":      action,
		"acceptances": s.daemon.AcceptanceCount(action),
	})
}

func (s *Server) handleAcceptances(w http.ResponseWriter, r *http.Request) {
	action := model.CanonicalAction(chi.URLParam(r, "action"))
	writeJSON(w, http.StatusOK, map[string]any{
		"action": action,
		"count":  s.daemon.AcceptanceCount(action),
	})
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	events := s.daemon.BufferState()
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Reload(""); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"engine": s.daemon.Stats(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"telemetry":   s.daemon.Metrics(),
		"engine":      s.daemon.Stats(),
		"subscribers": s.daemon.Subscribers(),
	})
}

// handleStream sends one server-sent event per processed event until the
// client goes away or the daemon stops.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	notes, cancel := s.daemon.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, ok := <-notes:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				slog.Warn("encode notification", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: suggestions\nid: %s\ndata: %s\n\n", n.EventID, data)
			flusher.Flush()
		}
	}
}
