//go:build !llama

package runtime

// This file provides a no-CGO stub for the llama backend. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real backend lives in llama_cgo.go (tagged 'llama').

// llamaBuilt indicates whether this binary was compiled with real llama support.
var llamaBuilt = false

type stubRuntime struct{}

// NewLlamaRuntime returns the llama.cpp backend. In stub builds every
// operation fails fast; no mocked inference in production binaries.
func NewLlamaRuntime() Runtime { return stubRuntime{} }

func (stubRuntime) LoadModel(path string, params ModelParams) (Model, error) {
	return nil, ErrNotBuilt
}

func (stubRuntime) NewSamplerChain(stages []SamplerStage) (SamplerChain, error) {
	return nil, ErrNotBuilt
}

func (stubRuntime) ApplyChatTemplate(tmpl string, turns []ChatTurn) (string, error) {
	return "", ErrNotBuilt
}

func (stubRuntime) Name() string { return "stub" }
