// Package bridge implements the suspend/resume protocol between an
// external interpreter and a UI-facing conversation session.
//
// The interpreter runs as an independent goroutine with unpredictable
// timing; the only coupling is the effect/resolution exchange defined
// here. The exchange is single-flight and half-duplex: at most one
// suspension (input or choice request) exists at a time, and every
// suspension and resolution carries the session's generation token so a
// late answer to a discarded conversation can never leak into the next
// one.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/botforge/internal/logging"
	"github.com/rendis/botforge/internal/streaming"
	"github.com/rendis/botforge/pkg/schema"
)

// State is a conversation session's lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateAwaitingInput  State = "awaiting_input"
	StateAwaitingChoice State = "awaiting_choice"
)

// validTransitions defines the allowed session state transitions.
var validTransitions = map[State][]State{
	StateIdle:           {StateRunning},
	StateRunning:        {StateAwaitingInput, StateAwaitingChoice, StateIdle},
	StateAwaitingInput:  {StateRunning, StateIdle},
	StateAwaitingChoice: {StateRunning, StateIdle},
}

// RequestKind distinguishes the two suspension types.
type RequestKind string

const (
	RequestInput  RequestKind = "input"
	RequestChoice RequestKind = "choice"
)

// Message is one transcript entry.
type Message struct {
	Text    string    `json:"text"`
	FromBot bool      `json:"from_bot"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	SessionID  string                `json:"session_id"`
	Generation uint64                `json:"generation"`
	State      State                 `json:"state"`
	Transcript []Message             `json:"transcript"`
	Options    []schema.ChoiceOption `json:"options,omitempty"`
}

// pendingRequest is the tagged suspension: generation, kind and the
// resolver channel travel together, so a resolution can be checked
// against the generation before it is ever applied.
type pendingRequest struct {
	generation uint64
	kind       RequestKind
	options    []schema.ChoiceOption
	resolve    chan string // buffered(1): resolving never blocks the UI
}

// Session mediates one conversation between an interpreter and a UI.
// The transcript has exactly one writer (the session itself), is
// append-only within a generation, and is cleared atomically with the
// generation bump on restart.
type Session struct {
	id     string
	hub    streaming.EventHub
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      State
	transcript []Message
	pending    *pendingRequest
	runCancel  context.CancelFunc
}

// NewSession creates an idle session publishing its events to hub.
func NewSession(id string, hub streaming.EventHub, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:     id,
		hub:    hub,
		logger: logger.With(slog.String("session_id", id)),
		state:  StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Generation returns the current generation token.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:  s.id,
		Generation: s.generation,
		State:      s.state,
		Transcript: append([]Message(nil), s.transcript...),
	}
	if s.pending != nil && s.pending.kind == RequestChoice {
		snap.Options = append([]schema.ChoiceOption(nil), s.pending.options...)
	}
	return snap
}

// Begin starts a new conversation generation: the previous run's context
// is cancelled, any pending suspension is invalidated, the transcript is
// cleared and the state moves to Running — all atomically with the
// generation bump, so a resolution tagged with the old generation can
// never reach the new conversation. The returned Run is the interpreter's
// handle; its context is derived from ctx and is cancelled by the next
// Begin or by Close.
func (s *Session) Begin(ctx context.Context) (*Run, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCancel != nil {
		s.runCancel()
	}

	s.generation++
	s.pending = nil
	s.transcript = nil
	s.state = StateRunning

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	run := &Run{session: s, generation: s.generation}
	runCtx = logging.WithSessionID(runCtx, s.id)

	s.publishLocked(streaming.EventRestarted, nil)
	s.publishLocked(streaming.EventStateChanged, string(StateRunning))

	return run, runCtx
}

// Close discards the session: the current run is cancelled and the
// generation bumped so every outstanding suspension and in-flight
// resolution goes stale.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.generation++
	s.pending = nil
	s.state = StateIdle
	s.publishLocked(streaming.EventClosed, nil)
}

// ProvideInput resumes a suspended input request with the user's text.
// Valid only in AwaitingInput for the current generation: a stale
// generation is silently dropped (an expected consequence of fast
// restarts, not an error), any other misuse is rejected. The user's text
// is appended to the transcript before the interpreter resumes, so
// transcript order always matches wall-clock UI interaction order.
func (s *Session) ProvideInput(generation uint64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		s.logger.Debug("dropping stale input resolution",
			slog.String("code", schema.ErrCodeStaleGeneration),
			slog.Uint64("resolution_generation", generation),
			slog.Uint64("current_generation", s.generation))
		return nil
	}
	if s.pending == nil || s.pending.kind != RequestInput {
		return schema.NewError(schema.ErrCodeExecution, "no input request pending")
	}

	s.appendLocked(Message{Text: text, FromBot: false, At: time.Now()})
	if err := s.transitionLocked(StateRunning); err != nil {
		return err
	}

	s.pending.resolve <- text
	s.pending = nil
	return nil
}

// ProvideChoice resumes a suspended choice request with the selected
// option id. An id not present in the requested option set is rejected
// with UNKNOWN_OPTION and has no side effects: the session stays in
// AwaitingChoice. The option's label is appended as a user message before
// the interpreter resumes.
func (s *Session) ProvideChoice(generation uint64, optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		s.logger.Debug("dropping stale choice resolution",
			slog.String("code", schema.ErrCodeStaleGeneration),
			slog.Uint64("resolution_generation", generation),
			slog.Uint64("current_generation", s.generation))
		return nil
	}
	if s.pending == nil || s.pending.kind != RequestChoice {
		return schema.NewError(schema.ErrCodeExecution, "no choice request pending")
	}

	var label string
	found := false
	for _, opt := range s.pending.options {
		if opt.ID == optionID {
			label = opt.Label
			found = true
			break
		}
	}
	if !found {
		return schema.NewErrorf(schema.ErrCodeUnknownOption,
			"option %q is not in the requested set", optionID)
	}

	s.appendLocked(Message{Text: label, FromBot: false, At: time.Now()})
	if err := s.transitionLocked(StateRunning); err != nil {
		return err
	}

	s.pending.resolve <- optionID
	s.pending = nil
	return nil
}

// --- locked helpers ---

func (s *Session) appendLocked(msg Message) {
	s.transcript = append(s.transcript, msg)
	s.publishLocked(streaming.EventMessage, msg)
}

func (s *Session) transitionLocked(to State) error {
	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			s.publishLocked(streaming.EventStateChanged, string(to))
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeExecution,
		"invalid session transition: %s -> %s", s.state, to)
}

func (s *Session) publishLocked(eventType string, payload any) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(context.Background(), streaming.StreamEvent{
		SessionID:  s.id,
		Generation: s.generation,
		EventType:  eventType,
		Payload:    payload,
	})
}
