package session

import (
	"strings"
	"testing"
)

func newTestSession(t *testing.T, rt *fakeRuntime, p Params) *Session {
	t.Helper()
	if p.CtxSize == 0 {
		p.CtxSize = 512
	}
	s, err := New(rt, "model.gguf", p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func setPieces(rt *fakeRuntime, m map[int32]string) {
	for k, v := range m {
		rt.model.vocab.pieces[k] = v
	}
}

func TestGenerateStopsOnEOG(t *testing.T) {
	rt := newFakeRuntime(10, 11, 12, 13, 99)
	rt.model.vocab.eog[99] = true
	setPieces(rt, map[int32]string{10: "Hel", 11: "lo ", 12: "wor", 13: "ld", 99: "<eos>"})
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{Prompt: "Hello"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Hello world" {
		t.Fatalf("out = %q", out)
	}
	if strings.Contains(out, "<eos>") {
		t.Fatalf("stop token fragment leaked: %q", out)
	}
	if got := s.Telemetry().Generated; got != 4 {
		t.Fatalf("generated = %d, want 4", got)
	}
	// 3 prompt tokens + 4 accepted generation tokens.
	if s.Position() != 7 {
		t.Fatalf("position = %d, want 7", s.Position())
	}
}

func TestGenerateStopsOnControlAttribute(t *testing.T) {
	rt := newFakeRuntime(10, 42)
	rt.model.vocab.control[42] = true
	setPieces(rt, map[int32]string{10: "ok", 42: "<ctl>"})
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "ok" {
		t.Fatalf("out = %q", out)
	}
	if s.Telemetry().Generated != 1 {
		t.Fatalf("generated = %d", s.Telemetry().Generated)
	}
}

func TestGenerateStopsOnCallerStopIDs(t *testing.T) {
	rt := newFakeRuntime(10, 11, 55, 12)
	setPieces(rt, map[int32]string{10: "a", 11: "b", 55: "STOP", 12: "c"})
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{Prompt: "p", StopIDs: []int32{55}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "ab" {
		t.Fatalf("out = %q", out)
	}
}

func TestGenerateTextualTagStops(t *testing.T) {
	rt := newFakeRuntime(10, 20, 21, 22, 11)
	setPieces(rt, map[int32]string{
		10: "done.", 20: "<end_", 21: "of_tur", 22: "n>", 11: "never",
	})
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "done." {
		t.Fatalf("out = %q", out)
	}
	// The tag-completing token is accepted by the sampler but not emitted
	// and not fed back into the context.
	if s.Telemetry().Generated != 3 {
		t.Fatalf("generated = %d, want 3", s.Telemetry().Generated)
	}
}

func TestGenerateUnboundedBudgetHitsCeiling(t *testing.T) {
	rt := newFakeRuntime() // never stops: samples the fallback token forever
	s := newTestSession(t, rt, Params{GenCeiling: 8})

	if s.Config().MaxTokens != -1 {
		t.Fatalf("default budget = %d, want -1", s.Config().MaxTokens)
	}
	if _, err := s.Generate(GenerateRequest{Prompt: "p"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := s.Telemetry().Generated; got != 8 {
		t.Fatalf("generated = %d, want exactly the ceiling 8", got)
	}
}

func TestGenerateBudgetOverridePersists(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestSession(t, rt, Params{})

	if _, err := s.Generate(GenerateRequest{Prompt: "p", MaxTokens: i32(3)}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := s.Telemetry().Generated; got != 3 {
		t.Fatalf("generated = %d, want 3", got)
	}
	if s.Config().MaxTokens != 3 {
		t.Fatalf("budget override did not persist: %d", s.Config().MaxTokens)
	}
}

func TestGenerateContextOverflowBeforeDecode(t *testing.T) {
	rt := newFakeRuntime()
	rt.model.vocab.promptToks = make([]int32, 600)
	s := newTestSession(t, rt, Params{CtxSize: 512})

	_, err := s.Generate(GenerateRequest{Prompt: "huge"})
	if err == nil || !IsContextOverflow(err) {
		t.Fatalf("expected ContextOverflow, got %v", err)
	}
	if s.Position() != 0 {
		t.Fatalf("overflow mutated position: %d", s.Position())
	}
	if len(rt.model.ctx.decodes) != 0 {
		t.Fatalf("overflow reached the runtime: %d decode calls", len(rt.model.ctx.decodes))
	}
}

func TestGeneratePositionNeverExceedsCapacity(t *testing.T) {
	rt := newFakeRuntime() // endless generation
	rt.model.vocab.promptToks = []int32{1, 2}
	s := newTestSession(t, rt, Params{CtxSize: 512, GenCeiling: 100000})

	if _, err := s.Generate(GenerateRequest{Prompt: "p"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if s.Position() > s.CtxSize() {
		t.Fatalf("position %d exceeds capacity %d", s.Position(), s.CtxSize())
	}
	if s.Position() != 512 {
		t.Fatalf("position = %d, want capacity 512", s.Position())
	}
}

func TestGenerateDecodeFailureAborts(t *testing.T) {
	rt := newFakeRuntime(10, 11)
	setPieces(rt, map[int32]string{10: "a", 11: "b"})
	// Call 0 is prompt ingestion; call 1 is the first generated token.
	rt.model.ctx.failAt = 1
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{Prompt: "p"})
	if err == nil || !IsDecodeFailed(err) {
		t.Fatalf("expected DecodeFailed, got %v", err)
	}
	if out != "" {
		t.Fatalf("failed call returned text: %q", out)
	}
}

func TestGenerateTokenizationFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.model.vocab.tokErr = errForced
	s := newTestSession(t, rt, Params{})

	_, err := s.Generate(GenerateRequest{Prompt: "p"})
	if err == nil || !IsTokenizationFailed(err) {
		t.Fatalf("expected TokenizationFailed, got %v", err)
	}
}

func TestGenerateSystemPreambleOnlyAtPositionZero(t *testing.T) {
	rt := newFakeRuntime(99)
	rt.model.vocab.eog[99] = true
	s := newTestSession(t, rt, Params{})

	if _, err := s.Generate(GenerateRequest{Prompt: "hi", System: "be brief"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := rt.model.vocab.texts[0]; got != "be brief\n\nhi" {
		t.Fatalf("first ingest = %q", got)
	}
	if !rt.model.vocab.addSpecial[0] {
		t.Fatalf("first ingest must add special tokens")
	}

	// Position is non-zero now; the system preamble is dropped.
	if _, err := s.Generate(GenerateRequest{Prompt: "again", System: "be brief"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := rt.model.vocab.texts[1]; got != "again" {
		t.Fatalf("second ingest = %q", got)
	}
	if rt.model.vocab.addSpecial[1] {
		t.Fatalf("mid-context ingest must not add special tokens")
	}
}

func TestGenerateResetClearsContext(t *testing.T) {
	rt := newFakeRuntime(99, 98)
	rt.model.vocab.eog[99] = true
	rt.model.vocab.eog[98] = true
	s := newTestSession(t, rt, Params{})

	if _, err := s.Generate(GenerateRequest{Prompt: "one"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if s.Position() == 0 {
		t.Fatalf("expected non-zero position after first call")
	}
	if _, err := s.Generate(GenerateRequest{Prompt: "two", Reset: true}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rt.model.ctx.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", rt.model.ctx.cleared)
	}
	// After reset the second ingest starts at position zero again.
	if got := rt.model.ctx.decodes[1].pos; got != 0 {
		t.Fatalf("post-reset ingest position = %d, want 0", got)
	}
}

func TestGenerateStreamedChunksMatchResult(t *testing.T) {
	rt := newFakeRuntime(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 99)
	rt.model.vocab.eog[99] = true
	for i := int32(10); i <= 19; i++ {
		rt.model.vocab.pieces[i] = strings.Repeat("x", 6)
	}
	s := newTestSession(t, rt, Params{})

	var chunks []string
	out, err := s.Generate(GenerateRequest{
		Prompt:  "p",
		OnToken: func(c string) error { chunks = append(chunks, c); return nil },
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple flushed chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != out {
		t.Fatalf("streamed chunks do not reassemble the result")
	}
	if out != strings.Repeat("x", 60) {
		t.Fatalf("out = %q", out)
	}
}

func TestGenerateCallbackFailureAborts(t *testing.T) {
	rt := newFakeRuntime(10, 11, 12, 13, 14, 15, 99)
	rt.model.vocab.eog[99] = true
	for i := int32(10); i <= 15; i++ {
		rt.model.vocab.pieces[i] = strings.Repeat("y", 8)
	}
	s := newTestSession(t, rt, Params{})

	out, err := s.Generate(GenerateRequest{
		Prompt:  "p",
		OnToken: func(string) error { return errForced },
	})
	if err == nil || !IsCallbackFailed(err) {
		t.Fatalf("expected CallbackFailed, got %v", err)
	}
	if out != "" {
		t.Fatalf("failed call returned text: %q", out)
	}
}

func TestGenerateOnFreedSession(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestSession(t, rt, Params{})
	if err := s.Free(); err != nil {
		t.Fatalf("free: %v", err)
	}
	if _, err := s.Generate(GenerateRequest{Prompt: "p"}); !IsInvalidHandle(err) {
		t.Fatalf("expected InvalidHandle, got %v", err)
	}
}
