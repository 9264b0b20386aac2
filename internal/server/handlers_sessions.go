package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/botforge/internal/compiler"
	"github.com/rendis/botforge/internal/streaming"
	"github.com/rendis/botforge/internal/validation"
	"github.com/rendis/botforge/pkg/schema"
)

type startSessionRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

// handleStartSession spins up a conversation against a stored bot. The
// scenario must validate cleanly before it runs.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	bot, err := s.deps.Store.GetBot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req startSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	g, err := compiler.FromScenario(bot.Scenario)
	if err != nil {
		writeError(w, err)
		return
	}
	if result := validation.Validate(g, bot.Scenario.GlobalVariables); !result.Valid() {
		writeError(w, schema.NewError(schema.ErrCodeValidation,
			"scenario has validation errors").WithDetails(map[string]any{
			"findings": result.Findings(),
		}))
		return
	}

	session := s.deps.Registry.Start(r.Context(), bot.ID, g, req.Variables)
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Registry.Restart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

type provideInputRequest struct {
	Generation uint64 `json:"generation"`
	Text       string `json:"text"`
}

// handleProvideInput resumes a suspended input request. Answers tagged
// with a superseded generation are acknowledged with 202 and discarded.
func (s *Server) handleProvideInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req provideInputRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.deps.Registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Generation != session.Generation() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "stale_generation"})
		return
	}

	if err := s.deps.Registry.ProvideInput(r.Context(), id, req.Generation, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

type provideChoiceRequest struct {
	Generation uint64 `json:"generation"`
	OptionID   string `json:"option_id"`
}

func (s *Server) handleProvideChoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req provideChoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.deps.Registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Generation != session.Generation() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "stale_generation"})
		return
	}

	if err := s.deps.Registry.ProvideChoice(r.Context(), id, req.Generation, req.OptionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{SessionID: chi.URLParam(r, "id")})
}

func (s *Server) handleGlobalEvents(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{})
}

// serveSSE is the common Server-Sent Events implementation.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
