// Package runtime defines the narrow contract between the session engine and
// the native inference runtime (llama.cpp). The real binding is compiled with
// the 'llama' build tag; default builds get a stub that fails fast.
package runtime

import "errors"

// ErrNotBuilt is returned by stub builds for every backend operation.
var ErrNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// Available reports whether a real backend is compiled in.
func Available() bool { return llamaBuilt }

// ModelParams controls model loading.
type ModelParams struct {
	// GPULayers is the number of layers to offload to the GPU (0 = CPU only).
	GPULayers int
}

// ContextParams controls inference-context creation.
type ContextParams struct {
	// NCtx is the context capacity in tokens.
	NCtx int
	// NBatch is the maximum batch width for a single decode call.
	NBatch int
}

// ChatTurn is one role/content message of a conversation.
type ChatTurn struct {
	Role    string
	Content string
}

// StageKind identifies a sampler transformation.
type StageKind int

const (
	StageTemp StageKind = iota
	StageTopK
	StageTopP
	StageMinP
	StagePenalties
	StageMirostatV1
	StageMirostatV2
	StageDist
)

// SamplerStage is one stage of a sampler chain. Only the fields relevant to
// Kind are read.
type SamplerStage struct {
	Kind StageKind

	Temp float32 // StageTemp
	K    int32   // StageTopK

	P       float32 // StageTopP, StageMinP
	MinKeep int     // StageTopP, StageMinP

	// StagePenalties
	LastN     int32
	Repeat    float32
	Presence  float32
	Frequency float32

	// StageMirostatV1/V2 and StageDist
	Seed   uint32
	Tau    float32
	Eta    float32
	NVocab int32 // StageMirostatV1 only
	M      int32 // StageMirostatV1 only
}

// Runtime is the entry point to a native inference backend.
type Runtime interface {
	// LoadModel loads a GGUF model from disk.
	LoadModel(path string, params ModelParams) (Model, error)
	// NewSamplerChain builds a sampler chain from an ordered stage list.
	NewSamplerChain(stages []SamplerStage) (SamplerChain, error)
	// ApplyChatTemplate renders conversation turns through a chat template,
	// appending the assistant generation prompt.
	ApplyChatTemplate(tmpl string, turns []ChatTurn) (string, error)
	// Name identifies the backend (for /version).
	Name() string
}

// Model is a loaded model. The vocabulary it returns is borrowed: it stays
// valid until Close and must not be used afterwards.
type Model interface {
	Vocab() Vocab
	NewContext(params ContextParams) (Context, error)
	// ChatTemplate returns the model's self-declared chat template, if any.
	ChatTemplate() (string, bool)
	Desc() string
	SizeBytes() uint64
	NumParams() uint64
	Close() error
}

// Vocab exposes the model's tokenizer and token metadata.
type Vocab interface {
	Tokenize(text string, addSpecial bool) ([]int32, error)
	// Piece returns the raw decoded bytes of a token. The bytes may be an
	// incomplete UTF-8 sequence; callers own boundary handling.
	Piece(token int32) []byte
	// IsEOG reports whether the token is an end-of-generation marker.
	IsEOG(token int32) bool
	// IsControl reports whether the token carries the control attribute.
	IsControl(token int32) bool
	NumTokens() int32
}

// Context is one inference context with its own KV cache.
type Context interface {
	// Decode submits tokens at consecutive positions pos, pos+1, ... and
	// requests logits for the last one.
	Decode(tokens []int32, pos int32) error
	// Clear resets the KV cache without releasing the context.
	Clear()
	Close() error
}

// SamplerChain draws tokens from the current context state.
type SamplerChain interface {
	// Sample draws one token from the last decoded logits.
	Sample(ctx Context) (int32, error)
	// Accept informs the chain a token was kept (penalty/mirostat bookkeeping).
	Accept(token int32)
	Close() error
}
