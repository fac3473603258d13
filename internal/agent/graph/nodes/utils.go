package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
)

// ensureToolCallIDs gives every tool call of out a distinct non-empty id.
// Some providers (Gemini OpenAI-compat) omit or repeat ids; replacements come
// from the per-turn sequence in state. Returns the number of ids replaced.
func ensureToolCallIDs(out *schema.Message, state *model.AppState) int {
	if out == nil || len(out.ToolCalls) == 0 {
		return 0
	}

	// Ids the provider did send are reserved before any is synthesized.
	taken := make(map[string]struct{}, len(out.ToolCalls))
	for _, tc := range out.ToolCalls {
		if id := strings.TrimSpace(tc.ID); id != "" {
			taken[id] = struct{}{}
		}
	}

	replaced := 0
	seen := make(map[string]struct{}, len(out.ToolCalls))
	for i := range out.ToolCalls {
		id := strings.TrimSpace(out.ToolCalls[i].ID)
		if _, dup := seen[id]; id == "" || dup {
			id = nextToolCallID(state, taken)
			taken[id] = struct{}{}
			replaced++
		}
		out.ToolCalls[i].ID = id
		seen[id] = struct{}{}
	}
	return replaced
}

func nextToolCallID(state *model.AppState, taken map[string]struct{}) string {
	for {
		state.ToolCallIDSeq++
		id := fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}
