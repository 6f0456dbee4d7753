package types

// InitRequest opens a new session.
type InitRequest struct {
	// Registry model id to load. Mutually exclusive with Path.
	// example: tinyllama-q4.gguf
	Model string `json:"model,omitempty" example:"tinyllama-q4.gguf"`
	// Absolute path to a GGUF file, bypassing the registry.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path,omitempty" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Context capacity override in tokens (512..32768); 0 uses the server default.
	// example: 4096
	CtxSize int `json:"ctx_size,omitempty" example:"4096"`
}

// InitResponse returns the opaque session handle.
type InitResponse struct {
	// Opaque handle for all subsequent session calls.
	// example: 0b9f3f2e-8f1d-4c92-9b6e-6a9f6f0c2d11
	Handle string `json:"handle" example:"0b9f3f2e-8f1d-4c92-9b6e-6a9f6f0c2d11"`
}

// SamplingOptions is a sparse sampling override: only the fields present in
// the JSON body are applied, each clamped to its valid domain.
type SamplingOptions struct {
	// Sampling temperature, clamped to [0,2].
	// example: 0.8
	Temperature *float64 `json:"temperature,omitempty" example:"0.8"`
	// Top-K filter size, minimum 1.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Nucleus sampling probability, clamped to [0,1].
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Minimum probability filter, clamped to [0,1].
	// example: 0.05
	MinP *float64 `json:"min_p,omitempty" example:"0.05"`
	// Repetition penalty; negative values reset to 1.0.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Penalty window over the last N accepted tokens.
	// example: 64
	RepeatLastN *int `json:"repeat_last_n,omitempty" example:"64"`
	// Presence penalty.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	// Frequency penalty.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	// Mirostat mode: 0=off, 1=v1, 2=v2.
	// example: 0
	Mirostat *int `json:"mirostat,omitempty" example:"0"`
	// Mirostat target entropy.
	MirostatTau *float64 `json:"mirostat_tau,omitempty"`
	// Mirostat learning rate.
	MirostatEta *float64 `json:"mirostat_eta,omitempty"`
	// Random seed; -1 lets the runtime choose.
	// example: -1
	Seed *int `json:"seed,omitempty" example:"-1"`
	// Default generation budget; -1 means unbounded (server ceiling applies).
	// example: 256
	NumPredict *int `json:"num_predict,omitempty" example:"256"`
}

// GenerateRequest continues the session's context with a prompt.
type GenerateRequest struct {
	// Prompt text to ingest and continue.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional system preamble, used only when the context is empty.
	System string `json:"system,omitempty"`
	// Reset clears context state before ingesting.
	// example: false
	Reset bool `json:"reset,omitempty" example:"false"`
	// If true, stream flushed chunks as NDJSON token lines.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Caller-supplied stop token IDs.
	StopIDs []int `json:"stop_ids,omitempty"`
	// Per-call generation budget override; -1 means unbounded.
	// example: 128
	MaxTokens *int `json:"max_tokens,omitempty" example:"128"`
	// Sparse sampling override applied before generating.
	Options *SamplingOptions `json:"options,omitempty"`
}

// ChatMessage is one role/content turn.
type ChatMessage struct {
	// Role of the speaker (system, user, assistant).
	// example: user
	Role string `json:"role" example:"user"`
	// Message content.
	// example: Hello!
	Content string `json:"content" example:"Hello!"`
}

// ChatRequest formats turns through the model's chat template and generates
// a reply. Chat calls always restart from an empty context.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	// If true, stream flushed chunks as NDJSON token lines.
	Stream bool `json:"stream,omitempty"`
	// Caller-supplied stop token IDs.
	StopIDs []int `json:"stop_ids,omitempty"`
	// Per-call generation budget override; -1 means unbounded.
	MaxTokens *int `json:"max_tokens,omitempty"`
	// Sparse sampling override applied before generating.
	Options *SamplingOptions `json:"options,omitempty"`
}

// GenerateResponse is the buffered (non-stream) completion payload, and the
// shape of the final NDJSON line when streaming.
type GenerateResponse struct {
	// example: true
	Done bool `json:"done" example:"true"`
	// Accumulated completion text with stop tags removed.
	Content string `json:"content"`
	// Why generation stopped: stop, budget, capacity.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	Usage        Usage  `json:"usage"`
}

// Usage is token accounting for one call.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 64
	CompletionTokens int `json:"completion_tokens" example:"64"`
	// example: 76
	TotalTokens int `json:"total_tokens" example:"76"`
}

// TokenizeRequest tokenizes raw text.
type TokenizeRequest struct {
	// example: Hello world
	Text string `json:"text" example:"Hello world"`
}

// TokenizeResponse returns the token IDs.
type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
	// example: 2
	Count int `json:"count" example:"2"`
}

// DetokenizeRequest converts token IDs back to text.
type DetokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

// DetokenizeResponse returns the concatenated text fragments.
type DetokenizeResponse struct {
	Text string `json:"text"`
}

// VerboseRequest sets the session verbosity when Level is present.
type VerboseRequest struct {
	// Verbosity level 0..3; omit to query the current level.
	// example: 2
	Level *int `json:"level,omitempty" example:"2"`
}

// VerboseResponse reports the current verbosity level.
type VerboseResponse struct {
	// example: 2
	Level int `json:"level" example:"2"`
}

// SamplingInfo is the session's current sampling configuration.
type SamplingInfo struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"top_k"`
	TopP             float64 `json:"top_p"`
	MinP             float64 `json:"min_p"`
	RepeatPenalty    float64 `json:"repeat_penalty"`
	RepeatLastN      int     `json:"repeat_last_n"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	Mirostat         int     `json:"mirostat"`
	MirostatTau      float64 `json:"mirostat_tau"`
	MirostatEta      float64 `json:"mirostat_eta"`
	Seed             int     `json:"seed"`
	MaxTokens        int     `json:"max_tokens"`
}

// TelemetryInfo reports phase durations, token counts and derived throughput.
// Throughput is 0 when the phase duration is zero, never NaN or infinite.
type TelemetryInfo struct {
	// Prompt ingestion wall-clock in milliseconds.
	EvalMS float64 `json:"t_eval_ms"`
	// Generation wall-clock in milliseconds.
	GenMS float64 `json:"t_gen_ms"`
	// Tokens ingested during the last ingestion phase.
	Evaluated int `json:"n_eval"`
	// Tokens generated during the last generation phase.
	Generated int `json:"n_gen"`
	// Ingestion throughput in tokens/second.
	EvalTPS float64 `json:"eval_tps"`
	// Generation throughput in tokens/second.
	GenTPS float64 `json:"gen_tps"`
}

// SessionInfo is returned by GET /sessions/{id}.
type SessionInfo struct {
	Handle string `json:"handle"`
	// Context capacity in tokens.
	// example: 4096
	CtxSize int `json:"n_ctx" example:"4096"`
	// Tokens consumed so far.
	// example: 128
	Position int `json:"n_past" example:"128"`
	// Alias of Position for context accounting.
	CtxUsed int `json:"n_ctx_used"`
	// Remaining context capacity.
	CtxAvailable int `json:"n_ctx_available"`
	// Model self-description.
	// example: llama 7B Q4_K - Medium
	ModelDesc string `json:"model_desc" example:"llama 7B Q4_K - Medium"`
	// Vocabulary size.
	VocabSize int `json:"n_vocab"`
	// Model size in bytes.
	ModelSize uint64 `json:"model_size"`
	// Model parameter count.
	ModelParams uint64 `json:"model_n_params"`

	Sampling  SamplingInfo  `json:"sampling"`
	Telemetry TelemetryInfo `json:"telemetry"`
}

// SessionStatus summarizes one open session for /status.
type SessionStatus struct {
	Handle string `json:"handle"`
	// example: llama 7B Q4_K - Medium
	ModelDesc string `json:"model_desc"`
	CtxSize   int    `json:"n_ctx"`
	Position  int    `json:"n_past"`
	// Whether a generation is currently in flight.
	Busy bool `json:"busy"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Sessions []SessionStatus `json:"sessions"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// VersionResponse is returned by GET /version.
type VersionResponse struct {
	// example: 1.0.0
	Version string `json:"version" example:"1.0.0"`
	// Inference backend compiled into this binary.
	// example: llama.cpp
	Runtime string `json:"runtime" example:"llama.cpp"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
