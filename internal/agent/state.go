package agent

// State is a step of the per-turn state machine. Every turn runs
// Idle -> ClassifyIntent -> ... -> Respond -> Idle.
type State int

const (
	Idle State = iota
	ClassifyIntent
	SearchProducts
	ResolveForAdd
	ResolveForRemove
	ViewCart
	CartTotal
	Conversational
	RequestClarification
	Respond
)

var stateNames = [...]string{
	Idle:                 "idle",
	ClassifyIntent:       "classify_intent",
	SearchProducts:       "search_products",
	ResolveForAdd:        "resolve_for_add",
	ResolveForRemove:     "resolve_for_remove",
	ViewCart:             "view_cart",
	CartTotal:            "cart_total",
	Conversational:       "conversational",
	RequestClarification: "request_clarification",
	Respond:              "respond",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
