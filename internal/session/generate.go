package session

import (
	"slices"
	"time"
)

// GenerateRequest is one generate call. It is fully consumed by the call and
// never persisted.
type GenerateRequest struct {
	Prompt string
	// System is prepended to the prompt, separated by a blank line, but only
	// when the context is empty (position 0).
	System string
	// Reset clears the context cache and position before ingesting.
	Reset bool
	// StopIDs is the caller-supplied stop-token set (tier three of the shield).
	StopIDs []int32
	// MaxTokens overrides the session's generation budget for this and
	// subsequent calls; nil keeps the current budget.
	MaxTokens *int32
	// Options is a sparse sampling override applied before generating.
	Options *Overrides
	// OnToken, when set, is invoked synchronously with each flushed chunk.
	OnToken func(string) error
}

// Generate ingests the prompt into the context and runs the generation loop
// until a stop condition, the token budget, or context capacity is reached.
// On failure the returned text is empty even if chunks were already
// delivered to OnToken; the call fails atomically from the caller's view.
func (s *Session) Generate(req GenerateRequest) (string, error) {
	if s.freed {
		return "", ErrInvalidHandle("(freed)")
	}
	if req.Options != nil {
		if err := s.SetOptions(req.Options); err != nil {
			return "", err
		}
	}
	if req.MaxTokens != nil {
		s.cfg.MaxTokens = *req.MaxTokens
		if s.cfg.MaxTokens < -1 {
			s.cfg.MaxTokens = -1
		}
	}
	if req.Reset {
		s.ictx.Clear()
		s.pos = 0
	}

	prompt := req.Prompt
	if req.System != "" && s.pos == 0 {
		prompt = req.System + "\n\n" + req.Prompt
	}
	if err := s.ingest(prompt, s.pos == 0); err != nil {
		return "", err
	}
	return s.run(req.StopIDs, req.OnToken)
}

// ingest tokenizes text and submits it to the inference context in one
// batch, advancing position. Overflow is checked before any decoding so a
// failing call never mutates position.
func (s *Session) ingest(text string, addSpecial bool) error {
	toks, err := s.vocab.Tokenize(text, addSpecial)
	if err != nil {
		return ErrTokenizationFailed(err)
	}
	if s.pos+len(toks) >= s.ctxSize {
		return ErrContextOverflow(s.pos, len(toks), s.ctxSize)
	}

	start := time.Now()
	if err := s.ictx.Decode(toks, int32(s.pos)); err != nil {
		return ErrDecodeFailed(err)
	}
	s.pos += len(toks)
	s.tel.EvalDuration = time.Since(start)
	s.tel.Evaluated = len(toks)
	return nil
}

// run is the per-token generation loop with the three-tier stop shield:
// native end-of-generation token, control-attribute token, caller stop IDs,
// plus the textual tag detector inside the streaming decoder.
func (s *Session) run(stopIDs []int32, sink func(string) error) (string, error) {
	dec := newStreamDecoder(sink)

	ceiling := int(s.cfg.MaxTokens)
	if ceiling <= 0 {
		ceiling = s.genCeiling
	}

	start := time.Now()
	count := 0
	var failure error

loop:
	for count < ceiling && s.pos < s.ctxSize {
		id, err := s.chain.Sample(s.ictx)
		if err != nil {
			failure = ErrDecodeFailed(err)
			break
		}
		s.chain.Accept(id)

		if s.verbose >= 2 {
			s.log.Debug().
				Int32("token", id).
				Bool("eog", s.vocab.IsEOG(id)).
				Bool("control", s.vocab.IsControl(id)).
				Bytes("piece", s.vocab.Piece(id)).
				Msg("sampled")
		}

		// Tier one: native end-of-generation marker.
		if s.vocab.IsEOG(id) {
			break
		}
		// Tier two: token flagged with the control attribute.
		if s.vocab.IsControl(id) {
			break
		}
		// Tier three: caller-specified stop IDs.
		if slices.Contains(stopIDs, id) {
			break
		}

		if piece := s.vocab.Piece(id); len(piece) > 0 {
			stop, err := dec.push(piece)
			if err != nil {
				failure = err
				break loop
			}
			if stop {
				// The decoder found a textual stop tag and already
				// truncated output before it.
				break loop
			}
		}

		if err := s.ictx.Decode([]int32{id}, int32(s.pos)); err != nil {
			failure = ErrDecodeFailed(err)
			break
		}
		s.pos++
		count++
	}

	if failure == nil {
		dec.finish()
	}
	s.tel.GenDuration = time.Since(start)
	s.tel.Generated = count

	if failure != nil {
		return "", failure
	}
	return dec.text(), nil
}
