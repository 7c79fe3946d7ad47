package types

// GenerateRequest is the payload for POST /generate.
type GenerateRequest struct {
	// Display name of the model to use. Required unless a default is configured.
	Model string `json:"model,omitempty"`
	// Prompt text to expand into an article. Required.
	Prompt string `json:"prompt"`
	// Maximum number of new tokens to generate. Server default applies when omitted.
	MaxNewTokens int `json:"max_new_tokens,omitempty"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	Model   string `json:"model"`
	Article string `json:"article"`
	// True when the prompt was cut to the token budget before encoding.
	TruncatedPrompt bool `json:"truncated_prompt,omitempty"`
	// True when generation failed and Article carries the user-visible message.
	Failed     bool   `json:"failed,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	RequestID  string `json:"request_id,omitempty"`
}

// ModelsResponse wraps the catalog view returned by GET /models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// InteractionsResponse wraps the log view returned by GET /interactions.
type InteractionsResponse struct {
	Interactions []Interaction `json:"interactions"`
}

// StatsResponse summarizes the interaction log for dashboards.
type StatsResponse struct {
	TotalInteractions int            `json:"total_interactions"`
	UniquePrompts     int            `json:"unique_prompts"`
	PerModel          map[string]int `json:"per_model"`
	MostUsedModel     string         `json:"most_used_model,omitempty"`
	AvgResponseChars  float64        `json:"avg_response_chars"`
}

// InstanceStatus summarizes one loaded model for GET /status.
type InstanceStatus struct {
	Model         string `json:"model"`
	State         string `json:"state"`
	LastUsed      int64  `json:"last_used_unix"`
	QueueLen      int    `json:"queue_len"`
	Inflight      int    `json:"inflight"`
	MaxQueueDepth int    `json:"max_queue_depth"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Instances      []InstanceStatus `json:"instances"`
	LoadsTotal     uint64           `json:"loads_total"`
	State          string           `json:"state"`
	LastError      string           `json:"last_error,omitempty"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	ServerTimeUnix int64            `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
