package model

// ================ Config ================
type ConversationConfig struct {
	TTL   string `envconfig:"CONVERSATION_TTL" default:"720h"`
	Tools struct {
		MaxIterations int    `envconfig:"CONVERSATION_TOOL_MAX_ITERATIONS" default:"10"`
		Parallel      bool   `envconfig:"CONVERSATION_TOOL_PARALLEL" default:"false"`
		UnknownPolicy string `envconfig:"CONVERSATION_TOOL_UNKNOWN_POLICY" default:"error"`
	}
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.7"`
}

// DocumentModelConfig configures the optional model used for turns that carry
// a PDF attachment. An empty Model disables it.
type DocumentModelConfig struct {
	Model          string  `envconfig:"DOCUMENT_MODEL"`
	MaxTokens      int     `envconfig:"DOCUMENT_MAX_TOKENS" default:"4000"`
	Temperature    float32 `envconfig:"DOCUMENT_TEMPERATURE" default:"1.0"`
	ThinkingBudget int32   `envconfig:"DOCUMENT_THINKING_BUDGET" default:"4000"`
}

type PromptConfig struct {
	BasePrompt string `envconfig:"PROMPT_BASE" default:"You are a professional career assistant. You review resumes, suggest concrete improvements and run mock interviews. Use the search tool when the user asks about current job market facts."`
}

type SearchConfig struct {
	APIKey     string `envconfig:"TAVILY_API_KEY"`
	BaseURL    string `envconfig:"TAVILY_BASE_URL" default:"https://api.tavily.com"`
	MaxResults int    `envconfig:"TAVILY_MAX_RESULTS" default:"3"`
	Topic      string `envconfig:"TAVILY_TOPIC" default:"general"`
	Depth      string `envconfig:"TAVILY_DEPTH" default:"basic"`
}

type CheckpointConfig struct {
	// Backend is one of memory, redis, postgres, sqlite.
	Backend string `envconfig:"CHECKPOINT_BACKEND" default:"memory"`
	DBURL   string `envconfig:"DB_URL"`
	MaxOpen int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdle int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}
