// Package interpreter walks a bot graph node by node, producing messages
// and suspensions through a bridge.Run. It is the reference consumer of
// the bridge protocol: every blocking operation takes the run's context,
// so a session restart tears an in-flight walk down without any extra
// coordination.
package interpreter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/internal/logging"
	"github.com/rendis/botforge/pkg/schema"
)

// Config tunes an Interpreter.
type Config struct {
	// MaxHops caps the number of node visits per conversation. Guards
	// against cyclic graphs that never reach a final node.
	MaxHops int
	// HTTPTimeout bounds each api node attempt.
	HTTPTimeout time.Duration
	// RetryBaseDelay is the base backoff between api node attempts;
	// attempt n waits base * 2^n.
	RetryBaseDelay time.Duration
	// MaxResponseBody caps how much of an api response is read.
	MaxResponseBody int64
	// CircuitBreaker tunes per-host collaborator circuit breaking.
	CircuitBreaker CircuitBreakerConfig
}

const (
	defaultMaxHops         = 10000
	defaultHTTPTimeout     = 30 * time.Second
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Interpreter executes scenarios. It is safe for concurrent use; all
// per-conversation state lives in local variables of Execute.
type Interpreter struct {
	config   Config
	engine   expressions.Engine
	jq       *expressions.GoJQEngine
	client   *http.Client
	breakers *circuitBreakerRegistry
	logger   *slog.Logger
}

// New creates an Interpreter evaluating condition nodes with engine.
func New(engine expressions.Engine, cfg Config, logger *slog.Logger) *Interpreter {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaultMaxHops
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		cfg.CircuitBreaker = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		config:   cfg,
		engine:   engine,
		jq:       expressions.NewGoJQEngine(),
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		breakers: newCircuitBreakerRegistry(cfg.CircuitBreaker),
		logger:   logger,
	}
}

// SetHTTPClient overrides the api node client. Intended for tests.
func (it *Interpreter) SetHTTPClient(c *http.Client) { it.client = c }

// Execute walks g from its start node until a final node, an error, or
// context cancellation. vars seeds the variable set; input and api nodes
// extend it as the walk progresses. Execute does not call run.Finish;
// the caller owns run lifecycle.
func (it *Interpreter) Execute(ctx context.Context, g *graph.Graph, run *bridge.Run, vars map[string]any) error {
	if vars == nil {
		vars = map[string]any{}
	}

	current := g.StartNode()
	if current == nil {
		return schema.NewError(schema.ErrCodeExecution, "scenario has no start node")
	}

	for hops := 0; ; hops++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hops >= it.config.MaxHops {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"conversation exceeded %d node visits", it.config.MaxHops).
				WithNode(current.ID)
		}

		nodeCtx := logging.WithNodeID(ctx, current.ID)
		it.logger.DebugContext(nodeCtx, "visiting node", slog.String("kind", string(current.Kind)))

		tag := schema.BranchDefault
		switch p := current.Payload.(type) {
		case graph.StartPayload:
			// entry marker, nothing to do

		case graph.FinalPayload:
			return nil

		case graph.MessagePayload:
			run.Emit(expressions.Render(p.Text, vars), true)

		case graph.InputPayload:
			run.Emit(expressions.Render(p.Prompt, vars), true)
			answer, err := run.RequestInput(nodeCtx)
			if err != nil {
				return err
			}
			vars[p.Variable] = answer

		case graph.ChoicePayload:
			run.Emit(expressions.Render(p.Prompt, vars), true)
			selected, err := run.RequestChoice(nodeCtx, p.Options)
			if err != nil {
				return err
			}
			tag = selected

		case graph.ConditionPayload:
			val, err := it.engine.Evaluate(nodeCtx, p.Expression, vars)
			if err != nil {
				return schema.NewErrorf(schema.ErrCodeExpression,
					"condition evaluation failed: %v", err).
					WithNode(current.ID).WithCause(err)
			}
			if expressions.Truthy(val) {
				tag = schema.BranchTrue
			} else {
				tag = schema.BranchFalse
			}

		case graph.APIPayload:
			result, err := it.callAPI(nodeCtx, &p, vars)
			if err != nil {
				return err
			}
			vars[p.ResultVariable] = result

		default:
			return schema.NewErrorf(schema.ErrCodeExecution,
				"unsupported node kind %q", current.Kind).WithNode(current.ID)
		}

		next, err := it.next(g, current, tag)
		if err != nil {
			return err
		}
		if next == nil {
			// Dead end. The walk stops here as if it had reached a final
			// node; the validator reports these as warnings, not errors.
			it.logger.DebugContext(nodeCtx, "conversation ended at dead end")
			return nil
		}
		current = next
	}
}

// next resolves the outgoing edge of node for the given branch tag.
// Single-handle kinds store their lone edge under an empty handle; an
// unbranched node without one is a dead end and resolves to nil. A
// condition or choice tag with no matching edge is an execution error,
// since the walk already committed to that branch.
func (it *Interpreter) next(g *graph.Graph, node *graph.Node, tag string) (*graph.Node, error) {
	want := tag
	if !graph.Branched(node.Kind) {
		want = ""
	}
	for _, e := range g.OutgoingEdges(node.ID) {
		if e.SourceHandle != want {
			continue
		}
		target := g.NodeByID(e.Target)
		if target == nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"edge %s targets unknown node %s", e.ID, e.Target).WithNode(node.ID)
		}
		return target, nil
	}
	if !graph.Branched(node.Kind) {
		return nil, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeExecution,
		"node has no outgoing transition for branch %q", tag).WithNode(node.ID)
}
