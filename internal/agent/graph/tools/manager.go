package tools

import (
	"github.com/cloudwego/eino/components/tool"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/tavily"
)

// GetQueryTools returns the tools offered to the response model. The web
// search tool is left out when no Tavily key is configured.
func GetQueryTools(cfg model.SearchConfig) []tool.InvokableTool {
	if cfg.APIKey == "" {
		logx.Warn().Msg("TAVILY_API_KEY not set; web search tool disabled")
		return nil
	}
	client := tavily.New(tavily.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Depth:      cfg.Depth,
		Topic:      cfg.Topic,
		MaxResults: cfg.MaxResults,
	})
	return []tool.InvokableTool{NewWebSearchTool(client)}
}
