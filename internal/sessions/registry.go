package sessions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/internal/interpreter"
	"github.com/rendis/botforge/internal/logging"
	"github.com/rendis/botforge/internal/streaming"
	"github.com/rendis/botforge/pkg/schema"
)

// Info describes a live session.
type Info struct {
	SessionID  string       `json:"session_id"`
	BotID      string       `json:"bot_id"`
	State      bridge.State `json:"state"`
	Generation uint64       `json:"generation"`
}

type entry struct {
	session *bridge.Session
	botID   string
	graph   *graph.Graph
	vars    map[string]any
}

// Registry owns the live sessions of a process: it creates them, launches
// interpreter runs against them, and writes snapshots through after every
// user interaction so a transcript survives a restart.
type Registry struct {
	interp    *interpreter.Interpreter
	hub       streaming.EventHub
	snapshots SnapshotStore
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(interp *interpreter.Interpreter, hub streaming.EventHub, snapshots SnapshotStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		interp:    interp,
		hub:       hub,
		snapshots: snapshots,
		logger:    logger,
		entries:   make(map[string]*entry),
	}
}

// Start creates a session for the given bot graph and launches its first
// conversation run. vars seeds the conversation's variable set.
func (r *Registry) Start(ctx context.Context, botID string, g *graph.Graph, vars map[string]any) *bridge.Session {
	id := uuid.NewString()
	session := bridge.NewSession(id, r.hub, r.logger)

	e := &entry{session: session, botID: botID, graph: g, vars: vars}
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	r.launch(ctx, e)
	return session
}

// Restart begins a fresh conversation on an existing session. The bridge
// guarantees the previous run is superseded atomically.
func (r *Registry) Restart(ctx context.Context, sessionID string) (*bridge.Session, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}
	r.launch(ctx, e)
	return e.session, nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(sessionID string) (*bridge.Session, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// ProvideInput forwards a user's text to the session and persists the
// updated transcript.
func (r *Registry) ProvideInput(ctx context.Context, sessionID string, generation uint64, text string) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}
	if err := e.session.ProvideInput(generation, text); err != nil {
		return err
	}
	r.persist(ctx, e.session)
	return nil
}

// ProvideChoice forwards a user's option selection to the session and
// persists the updated transcript.
func (r *Registry) ProvideChoice(ctx context.Context, sessionID string, generation uint64, optionID string) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}
	if err := e.session.ProvideChoice(generation, optionID); err != nil {
		return err
	}
	r.persist(ctx, e.session)
	return nil
}

// Close discards a live session. Its last snapshot is kept.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}
	r.persist(ctx, e.session)
	e.session.Close()

	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
	return nil
}

// List returns the live sessions, in no particular order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		snap := e.session.Snapshot()
		out = append(out, Info{
			SessionID:  snap.SessionID,
			BotID:      e.botID,
			State:      snap.State,
			Generation: snap.Generation,
		})
	}
	return out
}

func (r *Registry) entry(sessionID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", sessionID)
	}
	return e, nil
}

func (r *Registry) launch(_ context.Context, e *entry) {
	// The run outlives the request that started it; its lifetime is
	// bounded by the next Begin or Close, not by the caller's context.
	run, runCtx := e.session.Begin(context.Background())
	runCtx = logging.WithBotID(runCtx, e.botID)

	go func() {
		err := r.interp.Execute(runCtx, e.graph, run, cloneVars(e.vars))
		run.Finish(err)
		r.persist(context.Background(), e.session)
	}()
}

func (r *Registry) persist(ctx context.Context, session *bridge.Session) {
	if r.snapshots == nil {
		return
	}
	snap := session.Snapshot()
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.logger.Warn("snapshot write failed",
			slog.String("session_id", snap.SessionID),
			slog.Any("error", err))
	}
}

// cloneVars copies the seed variables so runs never share mutable state.
func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
