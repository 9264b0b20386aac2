package schema

// ScenarioDocument is the portable, JSON-serializable form of a bot graph.
// It is a derived snapshot: recomputed on every save/export/run, never
// mutated in place. Layout coordinates are deliberately absent.
type ScenarioDocument struct {
	BotName         string           `json:"BotName"`
	Token           string           `json:"Token"`
	GlobalVariables []string         `json:"GlobalVariables"`
	Nodes           []NodeDefinition `json:"Nodes"`
	StartNodeID     string           `json:"StartNodeId"`
}

// NodeKind enumerates the block types a scenario is built from.
type NodeKind string

const (
	KindStart     NodeKind = "start"
	KindFinal     NodeKind = "final"
	KindMessage   NodeKind = "message"
	KindInput     NodeKind = "input"
	KindCondition NodeKind = "condition"
	KindChoice    NodeKind = "choice"
	KindAPI       NodeKind = "api"
)

// KnownKind reports whether k is one of the seven node kinds.
func KnownKind(k NodeKind) bool {
	switch k {
	case KindStart, KindFinal, KindMessage, KindInput, KindCondition, KindChoice, KindAPI:
		return true
	}
	return false
}

// Branch tags used as keys of a node's transition map.
const (
	// BranchDefault keys the single outgoing transition of unbranched kinds
	// (start, message, input, api).
	BranchDefault = "default"
	BranchTrue    = "true"
	BranchFalse   = "false"
)

// ChoiceOption is one selectable option of a choice node. The option id
// doubles as the branch tag of the edge that leaves through it.
type ChoiceOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NodeDefinition is the flat, kind-tagged wire form of a node. Which fields
// are required depends on the kind; the compiler rejects documents with
// missing required fields instead of silently dropping data.
type NodeDefinition struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Label string   `json:"label,omitempty"`

	// message
	Text string `json:"text,omitempty"`

	// input, choice
	Prompt string `json:"prompt,omitempty"`

	// input
	Variable string `json:"variable,omitempty"`

	// condition
	Expression string `json:"expression,omitempty"`

	// choice
	Options []ChoiceOption `json:"options,omitempty"`

	// api
	URL            string            `json:"url,omitempty"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ResultVariable string            `json:"resultVariable,omitempty"`
	ResultFilter   string            `json:"resultFilter,omitempty"`
	RetryCount     int               `json:"retryCount,omitempty"`

	// Next maps branch tags to target node ids.
	Next map[string]string `json:"next,omitempty"`
}

// AllowedMethods lists the HTTP methods an api node may declare.
var AllowedMethods = []string{"GET", "POST", "PUT", "DELETE"}

// AllowedMethod reports whether m is a permitted api-node method.
func AllowedMethod(m string) bool {
	for _, am := range AllowedMethods {
		if m == am {
			return true
		}
	}
	return false
}
