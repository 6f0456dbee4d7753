// Package session implements the generation session engine: session
// lifecycle over a native inference runtime, the sampler-chain builder, the
// token-generation loop with its stop-condition shield, the UTF-8-safe
// streaming decoder, and the stateless chat path.
package session

import (
	"fmt"

	"github.com/rs/zerolog"

	"llamad/internal/runtime"
)

const (
	// Context capacity bounds enforced before any allocation.
	MinCtxSize = 512
	MaxCtxSize = 32768

	// DefaultCtxSize is used when the caller does not override capacity.
	DefaultCtxSize = 4096
	// DefaultBatchSize is the fixed decode batch width.
	DefaultBatchSize = 2048
	// DefaultGenCeiling bounds generation when the budget is unbounded,
	// to prevent runaway loops. Configurable via Params.
	DefaultGenCeiling = 4096
)

// Params configures a new Session.
type Params struct {
	// CtxSize is the context capacity in tokens; 0 selects DefaultCtxSize.
	CtxSize int
	// BatchSize is the decode batch width; 0 selects DefaultBatchSize.
	BatchSize int
	// GenCeiling bounds unbounded generation; 0 selects DefaultGenCeiling.
	GenCeiling int
	// GPULayers is passed through to the runtime.
	GPULayers int
	// Sampling overrides applied over the engine defaults at load time.
	Sampling *Overrides
	// Log receives engine events; zerolog.Nop() when unset is fine.
	Log zerolog.Logger
}

// Session owns one loaded model, one inference context and one sampler
// chain, plus the mutable generation state (position, sampling config,
// telemetry). Operations on a Session are not internally synchronized:
// the design is single-threaded per session, and concurrent calls on one
// handle must be serialized by the caller (the HTTP layer does so with a
// single in-flight slot). A running generation cannot be canceled; its
// duration is bounded only by the token budget and context capacity.
type Session struct {
	rt    runtime.Runtime
	model runtime.Model
	ictx  runtime.Context
	chain runtime.SamplerChain
	vocab runtime.Vocab // borrowed from model, never owned

	cfg        SamplingConfig
	ctxSize    int
	genCeiling int
	pos        int
	verbose    int
	tel        Telemetry
	freed      bool

	log zerolog.Logger

	// inflight is the single-generation admission slot used by Engine.
	inflight chan struct{}
}

// New loads a model and creates its inference context and sampler chain.
// Failure at any step releases whatever was already acquired; no partial
// session is ever returned.
func New(rt runtime.Runtime, modelPath string, p Params) (*Session, error) {
	ctxSize := p.CtxSize
	if ctxSize == 0 {
		ctxSize = DefaultCtxSize
	}
	if ctxSize < MinCtxSize || ctxSize > MaxCtxSize {
		return nil, ErrInvalidArgument(fmt.Sprintf("ctx_size must be between %d and %d, got %d",
			MinCtxSize, MaxCtxSize, ctxSize))
	}
	batch := p.BatchSize
	if batch == 0 {
		batch = DefaultBatchSize
	}
	ceiling := p.GenCeiling
	if ceiling <= 0 {
		ceiling = DefaultGenCeiling
	}

	model, err := rt.LoadModel(modelPath, runtime.ModelParams{GPULayers: p.GPULayers})
	if err != nil {
		return nil, ErrModelLoadFailed(modelPath, err)
	}
	ictx, err := model.NewContext(runtime.ContextParams{NCtx: ctxSize, NBatch: batch})
	if err != nil {
		_ = model.Close()
		return nil, ErrContextCreateFailed(ctxSize, err)
	}

	s := &Session{
		rt:         rt,
		model:      model,
		ictx:       ictx,
		vocab:      model.Vocab(),
		cfg:        mergeClamp(DefaultSampling(), p.Sampling),
		ctxSize:    ctxSize,
		genCeiling: ceiling,
		log:        p.Log,
		inflight:   make(chan struct{}, 1),
	}
	if err := s.rebuildChain(); err != nil {
		_ = ictx.Close()
		_ = model.Close()
		return nil, err
	}
	s.log.Debug().Str("model", modelPath).Int("ctx_size", ctxSize).Msg("session loaded")
	return s, nil
}

// rebuildChain constructs a new sampler chain from the current config and
// swaps it in atomically: the new chain is fully built before the old one is
// released, and a build failure leaves the old chain in place.
func (s *Session) rebuildChain() error {
	chain, err := s.rt.NewSamplerChain(samplerStages(s.cfg, s.vocab.NumTokens()))
	if err != nil {
		return ErrAllocationFailed(err)
	}
	if s.chain != nil {
		_ = s.chain.Close()
	}
	s.chain = chain
	return nil
}

// SetOptions merges a sparse override into the sampling configuration and
// rebuilds the sampler chain. No field is ever partially applied.
func (s *Session) SetOptions(ov *Overrides) error {
	if s.freed {
		return ErrInvalidHandle("(freed)")
	}
	next := mergeClamp(s.cfg, ov)
	prev := s.cfg
	s.cfg = next
	if err := s.rebuildChain(); err != nil {
		s.cfg = prev
		return err
	}
	return nil
}

// Config returns the current (clamped) sampling configuration.
func (s *Session) Config() SamplingConfig { return s.cfg }

// Position returns the number of tokens folded into the context so far.
func (s *Session) Position() int { return s.pos }

// CtxSize returns the configured context capacity in tokens.
func (s *Session) CtxSize() int { return s.ctxSize }

// Telemetry returns counters for the last ingestion/generation phases.
func (s *Session) Telemetry() Telemetry { return s.tel }

// Model exposes the loaded model for read-only queries (description, sizes).
func (s *Session) Model() runtime.Model { return s.model }

// Verbose sets the verbosity level when level is non-nil (clamped to 0..3)
// and returns the current level. Level 2 and above logs a per-token trace.
func (s *Session) Verbose(level *int) int {
	if level != nil {
		v := *level
		if v < 0 {
			v = 0
		}
		if v > 3 {
			v = 3
		}
		s.verbose = v
	}
	return s.verbose
}

// ClearCache resets position to zero and invalidates accumulated context
// state without releasing the model or context. Telemetry is reset too.
func (s *Session) ClearCache() error {
	if s.freed {
		return ErrInvalidHandle("(freed)")
	}
	s.ictx.Clear()
	s.pos = 0
	s.tel = Telemetry{}
	return nil
}

// Tokenize runs the model tokenizer over text with special tokens added.
func (s *Session) Tokenize(text string) ([]int32, error) {
	if s.freed {
		return nil, ErrInvalidHandle("(freed)")
	}
	toks, err := s.vocab.Tokenize(text, true)
	if err != nil {
		return nil, ErrTokenizationFailed(err)
	}
	return toks, nil
}

// Detokenize concatenates the text fragments of the given tokens.
func (s *Session) Detokenize(tokens []int32) (string, error) {
	if s.freed {
		return "", ErrInvalidHandle("(freed)")
	}
	var out []byte
	for _, t := range tokens {
		out = append(out, s.vocab.Piece(t)...)
	}
	return string(out), nil
}

// Free releases the context, model and sampler chain, in that order, and
// invalidates the session. All further operations fail with InvalidHandle.
func (s *Session) Free() error {
	if s.freed {
		return ErrInvalidHandle("(freed)")
	}
	s.freed = true
	if s.ictx != nil {
		_ = s.ictx.Close()
	}
	if s.model != nil {
		_ = s.model.Close()
	}
	if s.chain != nil {
		_ = s.chain.Close()
	}
	s.vocab = nil
	return nil
}
