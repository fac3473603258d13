package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Registry is the static name -> tool table. It is read-only once built and
// safe to share across turns.
type Registry struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

// NewRegistry indexes tools by the name reported in their ToolInfo. Empty,
// duplicate and whitespace-padded names are rejected; calls are matched on the
// exact name.
func NewRegistry(ctx context.Context, ts ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]tool.InvokableTool, len(ts)),
		infos: make([]*schema.ToolInfo, 0, len(ts)),
	}
	for i, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("tool %d is nil", i)
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool %d info: %w", i, err)
		}
		name := info.Name
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool %d has an empty name", i)
		}
		if name != strings.TrimSpace(name) {
			return nil, fmt.Errorf("tool name %q has surrounding whitespace", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", name)
		}
		r.tools[name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (tool.InvokableTool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Infos returns the tool schemas in registration order, for model binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	if r == nil {
		return nil
	}
	out := make([]*schema.ToolInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}
