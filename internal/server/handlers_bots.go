package server

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rendis/botforge/internal/compiler"
	"github.com/rendis/botforge/internal/store"
	"github.com/rendis/botforge/internal/validation"
	"github.com/rendis/botforge/pkg/schema"
)

type botResponse struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Scenario  *schema.ScenarioDocument `json:"scenario"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func toBotResponse(b *store.Bot) botResponse {
	return botResponse{
		ID:        b.ID,
		Name:      b.Name,
		Scenario:  b.Scenario,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

type createBotRequest struct {
	Name     string                   `json:"name"`
	Scenario *schema.ScenarioDocument `json:"scenario,omitempty"`
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.deps.Store.ListBots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]botResponse, 0, len(bots))
	for _, b := range bots {
		out = append(out, toBotResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "bot name is required"))
		return
	}

	doc := req.Scenario
	if doc == nil {
		doc = defaultScenario(req.Name)
	} else {
		doc.BotName = req.Name
		if _, err := compiler.FromScenario(doc); err != nil {
			writeError(w, err)
			return
		}
	}

	bot := &store.Bot{ID: uuid.NewString(), Name: req.Name, Scenario: doc}
	if err := s.deps.Store.CreateBot(r.Context(), bot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBotResponse(bot))
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.deps.Store.GetBot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(bot))
}

func (s *Server) handleUpdateBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req createBotRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	update := store.BotUpdate{}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Scenario != nil {
		if _, err := compiler.FromScenario(req.Scenario); err != nil {
			writeError(w, err)
			return
		}
		update.Scenario = req.Scenario
	}

	if err := s.deps.Store.UpdateBot(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	bot, err := s.deps.Store.GetBot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(bot))
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteBot(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.deps.Store.GetBot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := compiler.Encode(bot.Scenario)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+compiler.ExportFileName(bot.Scenario.BotName)+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleImportScenario(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeMalformedDocument, "read request body").WithCause(err))
		return
	}
	if err := validation.ValidateDocument(raw); err != nil {
		writeError(w, err)
		return
	}
	doc, err := compiler.Decode(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := compiler.FromScenario(doc); err != nil {
		writeError(w, err)
		return
	}

	bot := &store.Bot{ID: uuid.NewString(), Name: doc.BotName, Scenario: doc}
	if err := s.deps.Store.CreateBot(r.Context(), bot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBotResponse(bot))
}

type validateResponse struct {
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationIssue `json:"errors"`
	Warnings []schema.ValidationIssue `json:"warnings"`
}

// handleValidate runs the whole pipeline on a raw scenario document:
// shape check, decode, graph reconstruction, then semantic validation.
// Findings are always reported in full, never just the first one.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeMalformedDocument, "read request body").WithCause(err))
		return
	}
	if err := validation.ValidateDocument(raw); err != nil {
		writeError(w, err)
		return
	}
	doc, err := compiler.Decode(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := compiler.FromScenario(doc)
	if err != nil {
		writeError(w, err)
		return
	}

	result := validation.Validate(g, doc.GlobalVariables)
	resp := validateResponse{
		Valid:    result.Valid(),
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if resp.Errors == nil {
		resp.Errors = []schema.ValidationIssue{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []schema.ValidationIssue{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// defaultScenario is the authoring starting point: a start node wired
// straight to a final node.
func defaultScenario(botName string) *schema.ScenarioDocument {
	startID := uuid.NewString()
	finalID := uuid.NewString()
	return &schema.ScenarioDocument{
		BotName:     botName,
		StartNodeID: startID,
		Nodes: []schema.NodeDefinition{
			{ID: startID, Kind: schema.KindStart, Label: "Start",
				Next: map[string]string{schema.BranchDefault: finalID}},
			{ID: finalID, Kind: schema.KindFinal, Label: "End"},
		},
	}
}
