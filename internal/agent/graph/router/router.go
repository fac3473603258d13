// Package router holds the loop decision of a turn: dispatch the pending
// tool calls and call the model again, or stop.
package router

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-core-poc-v1/docagent/internal/core/error"
)

const DefaultMaxIterations = 10

// NormalizeMaxIterations maps a non-positive cap to DefaultMaxIterations.
func NormalizeMaxIterations(n int) int {
	if n <= 0 {
		return DefaultMaxIterations
	}
	return n
}

// State is the position of a turn in its model/tool loop.
type State int

const (
	AwaitingModel State = iota
	DispatchingTools
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "AWAITING_MODEL"
	case DispatchingTools:
		return "DISPATCHING_TOOLS"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AfterModel decides the next state from the latest model response. A nil
// message or an empty tool-call list always ends the turn.
func AfterModel(msg *schema.Message) State {
	if msg != nil && len(msg.ToolCalls) > 0 {
		return DispatchingTools
	}
	return Done
}

// AfterDispatch is the state following a tool dispatch.
func AfterDispatch() State {
	return AwaitingModel
}

// Route is AfterModel bounded by the iteration cap. modelCalls counts the
// model responses of the turn so far, including msg; a response asking for
// tools once more than maxIterations responses have been produced yields
// ErrMaxIterations.
func Route(msg *schema.Message, modelCalls, maxIterations int) (State, error) {
	next := AfterModel(msg)
	if next != DispatchingTools {
		return next, nil
	}
	maxIterations = NormalizeMaxIterations(maxIterations)
	if modelCalls > maxIterations {
		return Done, fmt.Errorf("%w: %d tool rounds allowed", errx.ErrMaxIterations, maxIterations)
	}
	return next, nil
}
