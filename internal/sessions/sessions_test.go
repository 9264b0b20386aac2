package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/internal/expressions"
	"github.com/rendis/botforge/internal/graph"
	"github.com/rendis/botforge/internal/interpreter"
	"github.com/rendis/botforge/pkg/schema"
)

func testGraph() *graph.Graph {
	start := graph.NewNode(graph.StartPayload{}, 0, 0)
	ask := graph.NewNode(graph.InputPayload{Prompt: "Your name?", Variable: "name"}, 0, 0)
	reply := graph.NewNode(graph.MessagePayload{Text: "Hi {{name}}!"}, 0, 0)
	end := graph.NewNode(graph.FinalPayload{}, 0, 0)
	return &graph.Graph{
		Nodes: []graph.Node{start, ask, reply, end},
		Edges: []graph.Edge{
			{ID: "e1", Source: start.ID, Target: ask.ID},
			{ID: "e2", Source: ask.ID, Target: reply.ID},
			{ID: "e3", Source: reply.ID, Target: end.ID},
		},
	}
}

func testRegistry(snaps SnapshotStore) *Registry {
	interp := interpreter.New(expressions.NewExprEngine(), interpreter.Config{RetryBaseDelay: time.Millisecond}, nil)
	return NewRegistry(interp, nil, snaps, nil)
}

func waitFor(t *testing.T, s *bridge.Session, want bridge.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == want
	}, time.Second, 2*time.Millisecond)
}

func TestRegistryFullConversation(t *testing.T) {
	snaps := NewMemorySnapshotStore()
	r := testRegistry(snaps)

	session := r.Start(context.Background(), "bot-1", testGraph(), nil)
	waitFor(t, session, bridge.StateAwaitingInput)

	require.NoError(t, r.ProvideInput(context.Background(), session.ID(), session.Generation(), "Linus"))
	waitFor(t, session, bridge.StateIdle)

	snap := session.Snapshot()
	require.Len(t, snap.Transcript, 3)
	assert.Equal(t, "Hi Linus!", snap.Transcript[2].Text)

	// The completed transcript was written through.
	stored, err := snaps.Load(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Len(t, stored.Transcript, 3)
}

func TestRegistryRestart(t *testing.T) {
	r := testRegistry(nil)

	session := r.Start(context.Background(), "bot-1", testGraph(), nil)
	waitFor(t, session, bridge.StateAwaitingInput)
	gen := session.Generation()

	_, err := r.Restart(context.Background(), session.ID())
	require.NoError(t, err)
	waitFor(t, session, bridge.StateAwaitingInput)
	assert.Greater(t, session.Generation(), gen)

	// Answering with the pre-restart generation is a silent no-op.
	require.NoError(t, r.ProvideInput(context.Background(), session.ID(), gen, "ghost"))
	assert.Equal(t, bridge.StateAwaitingInput, session.State())
}

func TestRegistryUnknownSession(t *testing.T) {
	r := testRegistry(nil)

	_, err := r.Get("nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = r.ProvideInput(context.Background(), "nope", 1, "hi")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistryCloseRemovesSession(t *testing.T) {
	snaps := NewMemorySnapshotStore()
	r := testRegistry(snaps)

	session := r.Start(context.Background(), "bot-1", testGraph(), nil)
	waitFor(t, session, bridge.StateAwaitingInput)

	require.NoError(t, r.Close(context.Background(), session.ID()))
	_, err := r.Get(session.ID())
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	// The last snapshot outlives the live session.
	_, err = snaps.Load(context.Background(), session.ID())
	assert.NoError(t, err)
}

func TestRegistryList(t *testing.T) {
	r := testRegistry(nil)

	s1 := r.Start(context.Background(), "bot-a", testGraph(), nil)
	s2 := r.Start(context.Background(), "bot-b", testGraph(), nil)
	waitFor(t, s1, bridge.StateAwaitingInput)
	waitFor(t, s2, bridge.StateAwaitingInput)

	infos := r.List()
	require.Len(t, infos, 2)
	bots := map[string]bool{}
	for _, info := range infos {
		bots[info.BotID] = true
		assert.Equal(t, bridge.StateAwaitingInput, info.State)
	}
	assert.True(t, bots["bot-a"] && bots["bot-b"])
}

func TestMemorySnapshotStore(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	snap := bridge.Snapshot{SessionID: "s1", Generation: 3, State: bridge.StateIdle}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Generation)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Load(ctx, "s1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func newRedisStore(t *testing.T, opts ...RedisOption) *RedisSnapshotStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSnapshotStoreFromClient(client, opts...)
}

func TestRedisSnapshotStoreRoundTrip(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	snap := bridge.Snapshot{
		SessionID:  "s1",
		Generation: 2,
		State:      bridge.StateAwaitingChoice,
		Transcript: []bridge.Message{{Text: "pick one", FromBot: true}},
		Options:    []schema.ChoiceOption{{ID: "a", Label: "A"}},
	}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap.State, got.State)
	assert.Equal(t, snap.Options, got.Options)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, "pick one", got.Transcript[0].Text)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Load(ctx, "s1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRedisSnapshotStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisSnapshotStoreFromClient(client, WithTTL(time.Minute))

	require.NoError(t, s.Save(context.Background(), bridge.Snapshot{SessionID: "s1"}))

	mr.FastForward(2 * time.Minute)
	_, err = s.Load(context.Background(), "s1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
