package session

import (
	"strings"

	"llamad/internal/runtime"
)

// ChatRequest is one stateless chat call.
type ChatRequest struct {
	Turns     []runtime.ChatTurn
	StopIDs   []int32
	MaxTokens *int32
	Options   *Overrides
	OnToken   func(string) error
}

// Chat formats the conversation through the model's chat template (or a
// minimal fallback), ingests the result, and runs the generation loop.
// Chat is never incremental: position is reset to zero and the context
// cache cleared before every call.
func (s *Session) Chat(req ChatRequest) (string, error) {
	if s.freed {
		return "", ErrInvalidHandle("(freed)")
	}

	s.ictx.Clear()
	s.pos = 0

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

	var formatted string
	if tmpl, ok := s.model.ChatTemplate(); ok {
		out, err := s.rt.ApplyChatTemplate(tmpl, req.Turns)
		if err != nil {
			return "", ErrTemplateFailed(err)
		}
		formatted = out
	} else {
		formatted = fallbackChatFormat(req.Turns)
	}

	if err := s.ingest(formatted, true); err != nil {
		return "", err
	}
	return s.run(req.StopIDs, req.OnToken)
}

// fallbackChatFormat renders turns as "role: content" lines for models that
// declare no chat template.
func fallbackChatFormat(turns []runtime.ChatTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
