package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/botforge/pkg/schema"
)

func TestNewNodeDerivesKindFromPayload(t *testing.T) {
	n := NewNode(MessagePayload{Name: "Greet", Text: "hi"}, 10, 20)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, schema.KindMessage, n.Kind)
	assert.Equal(t, "Greet", n.Payload.Label())
	assert.Equal(t, 10.0, n.X)
	assert.Equal(t, 20.0, n.Y)

	other := NewNode(MessagePayload{Text: "hi"}, 0, 0)
	assert.NotEqual(t, n.ID, other.ID)
}

func TestPayloadKinds(t *testing.T) {
	assert.Equal(t, schema.KindStart, StartPayload{}.Kind())
	assert.Equal(t, schema.KindFinal, FinalPayload{}.Kind())
	assert.Equal(t, schema.KindMessage, MessagePayload{}.Kind())
	assert.Equal(t, schema.KindInput, InputPayload{}.Kind())
	assert.Equal(t, schema.KindCondition, ConditionPayload{}.Kind())
	assert.Equal(t, schema.KindChoice, ChoicePayload{}.Kind())
	assert.Equal(t, schema.KindAPI, APIPayload{}.Kind())
}

func TestNodeByID(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{ID: "a", Kind: schema.KindStart, Payload: StartPayload{}},
		{ID: "b", Kind: schema.KindFinal, Payload: FinalPayload{}},
	}}

	require.NotNil(t, g.NodeByID("b"))
	assert.Equal(t, "b", g.NodeByID("b").ID)
	assert.Nil(t, g.NodeByID("ghost"))
}

func TestOutgoingEdgesPreservesOrder(t *testing.T) {
	g := &Graph{Edges: []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
		{ID: "e3", Source: "a", SourceHandle: "x", Target: "c"},
	}}

	out := g.OutgoingEdges("a")
	require.Len(t, out, 2)
	assert.Equal(t, "e1", out[0].ID)
	assert.Equal(t, "e3", out[1].ID)
	assert.Empty(t, g.OutgoingEdges("ghost"))
}

func TestStartNode(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{ID: "m", Kind: schema.KindMessage, Payload: MessagePayload{Text: "x"}},
		{ID: "s", Kind: schema.KindStart, Payload: StartPayload{}},
	}}

	require.NotNil(t, g.StartNode())
	assert.Equal(t, "s", g.StartNode().ID)

	assert.Nil(t, (&Graph{}).StartNode())
}

func TestBranchTags(t *testing.T) {
	cond := Node{Kind: schema.KindCondition, Payload: ConditionPayload{Expression: "x"}}
	assert.Equal(t, []string{schema.BranchTrue, schema.BranchFalse}, BranchTags(&cond))

	choice := Node{Kind: schema.KindChoice, Payload: ChoicePayload{Options: []schema.ChoiceOption{
		{ID: "yes", Label: "Yes"}, {ID: "no", Label: "No"},
	}}}
	assert.Equal(t, []string{"yes", "no"}, BranchTags(&choice))

	msg := Node{Kind: schema.KindMessage, Payload: MessagePayload{Text: "x"}}
	assert.Nil(t, BranchTags(&msg))
}

func TestBranched(t *testing.T) {
	assert.True(t, Branched(schema.KindCondition))
	assert.True(t, Branched(schema.KindChoice))
	assert.False(t, Branched(schema.KindStart))
	assert.False(t, Branched(schema.KindMessage))
	assert.False(t, Branched(schema.KindInput))
	assert.False(t, Branched(schema.KindAPI))
	assert.False(t, Branched(schema.KindFinal))
}
