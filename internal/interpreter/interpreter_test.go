package interpreter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/pkg/schema"
)

func testInterpreter() *Interpreter {
	return New(expressions.NewExprEngine(), Config{RetryBaseDelay: time.Millisecond}, nil)
}

// linear wires nodes into a chain with default edges and returns the graph.
func linear(nodes ...graph.Node) *graph.Graph {
	g := &graph.Graph{Nodes: nodes}
	for i := 0; i < len(nodes)-1; i++ {
		g.Edges = append(g.Edges, graph.Edge{
			ID:     graph.NewID(),
			Source: nodes[i].ID,
			Target: nodes[i+1].ID,
		})
	}
	return g
}

func botMessages(s *bridge.Session) []string {
	var out []string
	for _, m := range s.Snapshot().Transcript {
		if m.FromBot {
			out = append(out, m.Text)
		}
	}
	return out
}

func TestExecuteLinearMessages(t *testing.T) {
	g := linear(
		graph.NewNode(graph.StartPayload{Name: "Start"}, 0, 0),
		graph.NewNode(graph.MessagePayload{Name: "Greet", Text: "Hello {{name}}!"}, 0, 0),
		graph.NewNode(graph.FinalPayload{Name: "End"}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello Ada!"}, botMessages(s))
}

func TestExecuteInputBindsVariable(t *testing.T) {
	g := linear(
		graph.NewNode(graph.StartPayload{}, 0, 0),
		graph.NewNode(graph.InputPayload{Prompt: "What is your name?", Variable: "name"}, 0, 0),
		graph.NewNode(graph.MessagePayload{Text: "Nice to meet you, {{name}}."}, 0, 0),
		graph.NewNode(graph.FinalPayload{}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- testInterpreter().Execute(ctx, g, run, nil)
	}()

	require.Eventually(t, func() bool {
		return s.State() == bridge.StateAwaitingInput
	}, time.Second, 2*time.Millisecond)
	require.NoError(t, s.ProvideInput(run.Generation(), "Grace"))

	require.NoError(t, <-done)
	assert.Equal(t, []string{"What is your name?", "Nice to meet you, Grace."}, botMessages(s))
}

func TestExecuteConditionBranches(t *testing.T) {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	cond := graph.NewNode(graph.ConditionPayload{Expression: `age >= 18`}, 0, 0)
	yes := graph.NewNode(graph.MessagePayload{Text: "adult"}, 0, 0)
	no := graph.NewNode(graph.MessagePayload{Text: "minor"}, 0, 0)
	end := graph.NewNode(graph.FinalPayload{}, 0, 0)

	g := &graph.Graph{
		Nodes: []graph.Node{start, cond, yes, no, end},
		Edges: []graph.Edge{
			{ID: "e1", Source: start.ID, Target: cond.ID},
			{ID: "e2", Source: cond.ID, SourceHandle: schema.BranchTrue, Target: yes.ID},
			{ID: "e3", Source: cond.ID, SourceHandle: schema.BranchFalse, Target: no.ID},
			{ID: "e4", Source: yes.ID, Target: end.ID},
			{ID: "e5", Source: no.ID, Target: end.ID},
		},
	}

	for _, tc := range []struct {
		age  int
		want string
	}{
		{age: 30, want: "adult"},
		{age: 12, want: "minor"},
	} {
		s := bridge.NewSession("sess-1", nil, nil)
		run, ctx := s.Begin(context.Background())

		err := testInterpreter().Execute(ctx, g, run, map[string]any{"age": tc.age})
		require.NoError(t, err)
		assert.Equal(t, []string{tc.want}, botMessages(s))
	}
}

func TestExecuteChoiceRoutesBySelectedOption(t *testing.T) {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	choice := graph.NewNode(graph.ChoicePayload{
		Prompt: "Tea or coffee?",
		Options: []schema.ChoiceOption{
			{ID: "tea", Label: "Tea"},
			{ID: "coffee", Label: "Coffee"},
		},
	}, 0, 0)
	tea := graph.NewNode(graph.MessagePayload{Text: "One tea coming up."}, 0, 0)
	coffee := graph.NewNode(graph.MessagePayload{Text: "One coffee coming up."}, 0, 0)
	end := graph.NewNode(graph.FinalPayload{}, 0, 0)

	g := &graph.Graph{
		Nodes: []graph.Node{start, choice, tea, coffee, end},
		Edges: []graph.Edge{
			{ID: "e1", Source: start.ID, Target: choice.ID},
			{ID: "e2", Source: choice.ID, SourceHandle: "tea", Target: tea.ID},
			{ID: "e3", Source: choice.ID, SourceHandle: "coffee", Target: coffee.ID},
			{ID: "e4", Source: tea.ID, Target: end.ID},
			{ID: "e5", Source: coffee.ID, Target: end.ID},
		},
	}

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- testInterpreter().Execute(ctx, g, run, nil)
	}()

	require.Eventually(t, func() bool {
		return s.State() == bridge.StateAwaitingChoice
	}, time.Second, 2*time.Millisecond)
	require.NoError(t, s.ProvideChoice(run.Generation(), "coffee"))

	require.NoError(t, <-done)
	assert.Equal(t, []string{"Tea or coffee?", "One coffee coming up."}, botMessages(s))
}

func TestExecuteAPIBindsAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current": {"temp_c": 21.5, "condition": "sunny"}}`))
	}))
	defer srv.Close()

	g := linear(
		graph.NewNode(graph.StartPayload{}, 0, 0),
		graph.NewNode(graph.APIPayload{
			URL:            srv.URL + "/weather",
			Method:         http.MethodGet,
			Headers:        map[string]string{"Authorization": "Bearer {{api_token}}"},
			ResultVariable: "weather",
			ResultFilter:   ".current",
		}, 0, 0),
		graph.NewNode(graph.MessagePayload{Text: "It is {{weather.condition}}, {{weather.temp_c}} degrees."}, 0, 0),
		graph.NewNode(graph.FinalPayload{}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, map[string]any{"api_token": "token-123"})
	require.NoError(t, err)
	assert.Equal(t, []string{"It is sunny, 21.5 degrees."}, botMessages(s))
}

func TestExecuteAPIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	g := linear(
		graph.NewNode(graph.StartPayload{}, 0, 0),
		graph.NewNode(graph.APIPayload{
			URL:            srv.URL,
			Method:         http.MethodGet,
			ResultVariable: "result",
			RetryCount:     3,
		}, 0, 0),
		graph.NewNode(graph.FinalPayload{}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteAPIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := linear(
		graph.NewNode(graph.StartPayload{}, 0, 0),
		graph.NewNode(graph.APIPayload{
			URL:            srv.URL,
			Method:         http.MethodGet,
			ResultVariable: "result",
			RetryCount:     5,
		}, 0, 0),
		graph.NewNode(graph.FinalPayload{}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeCollaborator))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteRestartCancelsSuspendedWalk(t *testing.T) {
	g := linear(
		graph.NewNode(graph.StartPayload{}, 0, 0),
		graph.NewNode(graph.InputPayload{Prompt: "say something", Variable: "x"}, 0, 0),
		graph.NewNode(graph.FinalPayload{}, 0, 0),
	)

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- testInterpreter().Execute(ctx, g, run, nil)
	}()

	require.Eventually(t, func() bool {
		return s.State() == bridge.StateAwaitingInput
	}, time.Second, 2*time.Millisecond)

	s.Begin(context.Background())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("suspended walk did not stop on restart")
	}
}

func TestExecuteDeadEndEndsConversation(t *testing.T) {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	msg := graph.NewNode(graph.MessagePayload{Text: "goodbye"}, 0, 0)
	g := &graph.Graph{
		Nodes: []graph.Node{start, msg},
		Edges: []graph.Edge{{ID: "e1", Source: start.ID, Target: msg.ID}},
	}

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"goodbye"}, botMessages(s))
}

func TestExecuteMissingBranchFails(t *testing.T) {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	cond := graph.NewNode(graph.ConditionPayload{Expression: "true"}, 0, 0)
	end := graph.NewNode(graph.FinalPayload{}, 0, 0)
	g := &graph.Graph{
		Nodes: []graph.Node{start, cond, end},
		Edges: []graph.Edge{
			{ID: "e1", Source: start.ID, Target: cond.ID},
			// Only the false branch is wired; the walk takes true.
			{ID: "e2", Source: cond.ID, SourceHandle: schema.BranchFalse, Target: end.ID},
		},
	}

	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := testInterpreter().Execute(ctx, g, run, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestExecuteHopLimitBreaksCycles(t *testing.T) {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	a := graph.NewNode(graph.MessagePayload{Text: "loop"}, 0, 0)
	g := &graph.Graph{
		Nodes: []graph.Node{start, a},
		Edges: []graph.Edge{
			{ID: "e1", Source: start.ID, Target: a.ID},
			{ID: "e2", Source: a.ID, Target: a.ID},
		},
	}

	it := New(expressions.NewExprEngine(), Config{MaxHops: 25}, nil)
	s := bridge.NewSession("sess-1", nil, nil)
	run, ctx := s.Begin(context.Background())

	err := it.Execute(ctx, g, run, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}
