package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llamad/internal/runtime"
	"llamad/pkg/types"
)

// Engine is the host-facing handle table: an opaque-ID map of owned Session
// records, looked up on every call. It replaces per-session command
// registration with explicit handles. The table itself is safe for
// concurrent use; individual sessions are not, so generate/chat callers
// must hold the session's in-flight slot (Acquire).
type Engine struct {
	rt  runtime.Runtime
	log zerolog.Logger

	defaults Params

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine creates an engine over the given runtime. defaults supplies the
// per-session parameters used when a caller does not override them.
func NewEngine(rt runtime.Runtime, defaults Params, log zerolog.Logger) *Engine {
	return &Engine{
		rt:       rt,
		log:      log,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

// Open loads a model and returns a new opaque session handle.
func (e *Engine) Open(modelPath string, ctxSize int) (string, error) {
	p := e.defaults
	if ctxSize != 0 {
		p.CtxSize = ctxSize
	}
	p.Log = e.log
	s, err := New(e.rt, modelPath, p)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()
	e.log.Info().Str("handle", id).Str("model", modelPath).Msg("session opened")
	return id, nil
}

// Close frees the session and removes its handle from the table.
func (e *Engine) Close(id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return ErrInvalidHandle(id)
	}
	e.log.Info().Str("handle", id).Msg("session closed")
	return s.Free()
}

// get resolves a handle or fails with InvalidHandle.
func (e *Engine) get(id string) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidHandle(id)
	}
	return s, nil
}

// Acquire reserves the session's single in-flight generation slot. It does
// not queue: a second caller is rejected immediately with SessionBusy. The
// returned release func must be deferred.
func (e *Engine) Acquire(id string) (func(), error) {
	s, err := e.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case s.inflight <- struct{}{}:
		return func() { <-s.inflight }, nil
	default:
		return nil, ErrSessionBusy(id)
	}
}

// Generate runs a generate call on the session. The caller must hold the
// session's in-flight slot.
func (e *Engine) Generate(id string, req GenerateRequest) (string, error) {
	s, err := e.get(id)
	if err != nil {
		return "", err
	}
	return s.Generate(req)
}

// Chat runs a stateless chat call on the session. The caller must hold the
// session's in-flight slot.
func (e *Engine) Chat(id string, req ChatRequest) (string, error) {
	s, err := e.get(id)
	if err != nil {
		return "", err
	}
	return s.Chat(req)
}

func (e *Engine) Tokenize(id, text string) ([]int32, error) {
	s, err := e.get(id)
	if err != nil {
		return nil, err
	}
	return s.Tokenize(text)
}

func (e *Engine) Detokenize(id string, tokens []int32) (string, error) {
	s, err := e.get(id)
	if err != nil {
		return "", err
	}
	return s.Detokenize(tokens)
}

func (e *Engine) ClearCache(id string) error {
	s, err := e.get(id)
	if err != nil {
		return err
	}
	return s.ClearCache()
}

func (e *Engine) Verbose(id string, level *int) (int, error) {
	s, err := e.get(id)
	if err != nil {
		return 0, err
	}
	return s.Verbose(level), nil
}

// Info returns a snapshot of the session: context usage, model description,
// sampling configuration, and telemetry with zero-safe throughput.
func (e *Engine) Info(id string) (types.SessionInfo, error) {
	s, err := e.get(id)
	if err != nil {
		return types.SessionInfo{}, err
	}
	cfg := s.Config()
	tel := s.Telemetry()
	return types.SessionInfo{
		Handle:       id,
		CtxSize:      s.CtxSize(),
		Position:     s.Position(),
		CtxUsed:      s.Position(),
		CtxAvailable: s.CtxSize() - s.Position(),
		ModelDesc:    s.Model().Desc(),
		VocabSize:    int(s.vocab.NumTokens()),
		ModelSize:    s.Model().SizeBytes(),
		ModelParams:  s.Model().NumParams(),
		Sampling: types.SamplingInfo{
			Temperature:      float64(cfg.Temperature),
			TopK:             int(cfg.TopK),
			TopP:             float64(cfg.TopP),
			MinP:             float64(cfg.MinP),
			RepeatPenalty:    float64(cfg.RepeatPenalty),
			RepeatLastN:      int(cfg.RepeatLastN),
			PresencePenalty:  float64(cfg.PresencePenalty),
			FrequencyPenalty: float64(cfg.FrequencyPenalty),
			Mirostat:         int(cfg.Mirostat),
			MirostatTau:      float64(cfg.MirostatTau),
			MirostatEta:      float64(cfg.MirostatEta),
			Seed:             int(cfg.Seed),
			MaxTokens:        int(cfg.MaxTokens),
		},
		Telemetry: types.TelemetryInfo{
			EvalMS:    float64(tel.EvalDuration.Microseconds()) / 1000.0,
			GenMS:     float64(tel.GenDuration.Microseconds()) / 1000.0,
			Evaluated: tel.Evaluated,
			Generated: tel.Generated,
			EvalTPS:   tel.EvalTPS(),
			GenTPS:    tel.GenTPS(),
		},
	}, nil
}

// Handles returns the currently open session handles.
func (e *Engine) Handles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

// Busy reports whether a generation is in flight on the session.
func (e *Engine) Busy(id string) bool {
	s, err := e.get(id)
	if err != nil {
		return false
	}
	return len(s.inflight) > 0
}
