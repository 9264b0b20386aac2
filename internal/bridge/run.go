package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/botforge/internal/streaming"
	"github.com/rendis/botforge/pkg/schema"
)

// Run is the interpreter's handle on one conversation generation. Every
// effect it produces is tagged with the generation it was created under;
// effects from a superseded run are dropped without error, which lets a
// restarted session ignore the old interpreter goroutine while it winds
// down instead of coordinating its shutdown.
type Run struct {
	session    *Session
	generation uint64
}

// Generation returns the generation token this run is bound to.
func (r *Run) Generation() uint64 { return r.generation }

// SessionID returns the owning session's identifier.
func (r *Run) SessionID() string { return r.session.id }

// Emit appends a message to the transcript, attributed to the bot or the
// user via fromBot. Emissions from a superseded run are dropped.
func (r *Run) Emit(text string, fromBot bool) {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.generation != s.generation {
		return
	}
	s.appendLocked(Message{Text: text, FromBot: fromBot, At: time.Now()})
}

// RequestInput suspends the run until the user provides free text via
// ProvideInput, ctx is cancelled, or the run is superseded. A second
// suspension while one is outstanding is a protocol violation and is
// fatal to the session.
func (r *Run) RequestInput(ctx context.Context) (string, error) {
	return r.suspend(ctx, RequestInput, nil)
}

// RequestChoice suspends the run until the user selects one of options
// via ProvideChoice. It returns the selected option id. The semantics
// mirror RequestInput.
func (r *Run) RequestChoice(ctx context.Context, options []schema.ChoiceOption) (string, error) {
	return r.suspend(ctx, RequestChoice, append([]schema.ChoiceOption(nil), options...))
}

func (r *Run) suspend(ctx context.Context, kind RequestKind, options []schema.ChoiceOption) (string, error) {
	s := r.session
	s.mu.Lock()

	if r.generation != s.generation {
		s.mu.Unlock()
		return "", schema.NewError(schema.ErrCodeStaleGeneration, "run superseded")
	}
	if s.pending != nil {
		s.abortLocked()
		s.mu.Unlock()
		return "", schema.NewError(schema.ErrCodeConcurrentRequest,
			"a request is already outstanding on this session")
	}

	target := StateAwaitingInput
	if kind == RequestChoice {
		target = StateAwaitingChoice
	}
	if err := s.transitionLocked(target); err != nil {
		s.mu.Unlock()
		return "", err
	}

	req := &pendingRequest{
		generation: r.generation,
		kind:       kind,
		options:    options,
		resolve:    make(chan string, 1),
	}
	s.pending = req
	s.mu.Unlock()

	select {
	case answer := <-req.resolve:
		return answer, nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.pending == req {
			s.pending = nil
		}
		s.mu.Unlock()
		return "", ctx.Err()
	}
}

// Finish records the end of the run. A nil err is a normal completion; a
// non-nil err is surfaced on the event stream. Finishing a superseded
// run is a no-op.
func (r *Run) Finish(err error) {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.generation != s.generation {
		return
	}
	if err != nil {
		s.logger.Error("conversation run failed", slog.Any("error", err))
		s.publishLocked(streaming.EventStateChanged, map[string]any{
			"state": string(StateIdle),
			"error": err.Error(),
		})
		s.state = StateIdle
		s.pending = nil
		if s.runCancel != nil {
			s.runCancel()
			s.runCancel = nil
		}
		return
	}
	s.pending = nil
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	if s.state != StateIdle {
		_ = s.transitionLocked(StateIdle)
	}
}

// abortLocked tears the session down after a protocol violation. The
// current run is cancelled and the state forced back to Idle.
func (s *Session) abortLocked() {
	s.logger.Error("aborting session after protocol violation",
		slog.String("code", schema.ErrCodeConcurrentRequest))
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.pending = nil
	s.state = StateIdle
	s.publishLocked(streaming.EventStateChanged, string(StateIdle))
}
