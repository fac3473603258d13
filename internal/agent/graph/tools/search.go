package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/docagent/pkg/tavily"
)

const (
	ToolWebSearch = "tavily_search"

	maxSearchResults = 10
)

// Searcher is the web search backend of the search tool.
type Searcher interface {
	Search(ctx context.Context, r tavily.Request) (*tavily.Response, error)
}

// ===================================
// Web Search Tool
// ===================================

type WebSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

type WebSearchOutput struct {
	Query   string          `json:"query"`
	Answer  string          `json:"answer,omitempty"`
	Results []tavily.Result `json:"results"`
}

// NewWebSearchTool exposes searcher to the model as the tavily_search tool.
func NewWebSearchTool(searcher Searcher) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Search the web for current information such as job market trends, salary ranges, company facts or interview practices. Returns the most relevant pages with a short content snippet each.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search keywords, e.g. \"senior Go engineer salary Berlin 2025\".",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: fmt.Sprintf("Maximum number of results to return (max: %d)", maxSearchResults),
				},
				"topic": {
					Type: "string",
					Desc: "Search topic: general or news",
					Enum: []string{"general", "news"},
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}
			if in.MaxResults != 0 {
				in.MaxResults = clampInt(in.MaxResults, 1, maxSearchResults)
			}

			resp, err := searcher.Search(ctx, tavily.Request{
				Query:      query,
				MaxResults: in.MaxResults,
				Topic:      in.Topic,
			})
			if err != nil {
				return nil, err
			}

			out := &WebSearchOutput{Query: query, Answer: resp.Answer, Results: resp.Results}
			if out.Results == nil {
				out.Results = []tavily.Result{}
			}
			return out, nil
		},
	)
}
