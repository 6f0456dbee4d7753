package session

import (
	"errors"
	"fmt"
	"strings"

	"llamad/internal/runtime"
)

// errForced is the canned failure injected by the fakes.
var errForced = errors.New("forced failure")

// fakeRuntime is a lightweight in-memory runtime used across the package
// tests. The token script is shared by all chains it builds.
type fakeRuntime struct {
	model    *fakeModel
	loadErr  error
	chainErr error
	chains   []*fakeChain

	applied  []string
	applyErr error

	script   []int32
	scriptAt int
	// fallbackToken is sampled once the script runs out (a model that never
	// stops on its own).
	fallbackToken int32
}

func newFakeRuntime(script ...int32) *fakeRuntime {
	return &fakeRuntime{model: newFakeModel(), script: script, fallbackToken: 7}
}

func (r *fakeRuntime) LoadModel(path string, _ runtime.ModelParams) (runtime.Model, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.model, nil
}

func (r *fakeRuntime) NewSamplerChain(stages []runtime.SamplerStage) (runtime.SamplerChain, error) {
	if r.chainErr != nil {
		return nil, r.chainErr
	}
	ch := &fakeChain{rt: r, stages: stages}
	r.chains = append(r.chains, ch)
	return ch, nil
}

func (r *fakeRuntime) ApplyChatTemplate(tmpl string, turns []runtime.ChatTurn) (string, error) {
	r.applied = append(r.applied, tmpl)
	if r.applyErr != nil {
		return "", r.applyErr
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "<%s>%s", t.Role, t.Content)
	}
	b.WriteString("<assistant>")
	return b.String(), nil
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) next() int32 {
	if r.scriptAt >= len(r.script) {
		return r.fallbackToken
	}
	t := r.script[r.scriptAt]
	r.scriptAt++
	return t
}

type fakeModel struct {
	vocab   *fakeVocab
	ctx     *fakeContext
	ctxErr  error
	tmpl    string
	hasTmpl bool
	closed  int
}

func newFakeModel() *fakeModel {
	return &fakeModel{vocab: newFakeVocab(), ctx: &fakeContext{failAt: -1}}
}

func (m *fakeModel) Vocab() runtime.Vocab { return m.vocab }

func (m *fakeModel) NewContext(_ runtime.ContextParams) (runtime.Context, error) {
	if m.ctxErr != nil {
		return nil, m.ctxErr
	}
	return m.ctx, nil
}

func (m *fakeModel) ChatTemplate() (string, bool) { return m.tmpl, m.hasTmpl }
func (m *fakeModel) Desc() string                 { return "fake 1B" }
func (m *fakeModel) SizeBytes() uint64            { return 1 << 20 }
func (m *fakeModel) NumParams() uint64            { return 1000 }
func (m *fakeModel) Close() error                 { m.closed++; return nil }

type fakeVocab struct {
	// promptToks is returned by every Tokenize call.
	promptToks []int32
	tokErr     error
	texts      []string
	addSpecial []bool

	pieces  map[int32]string
	eog     map[int32]bool
	control map[int32]bool
	n       int32
}

func newFakeVocab() *fakeVocab {
	return &fakeVocab{
		promptToks: []int32{1, 2, 3},
		pieces:     map[int32]string{},
		eog:        map[int32]bool{},
		control:    map[int32]bool{},
		n:          100,
	}
}

func (v *fakeVocab) Tokenize(text string, addSpecial bool) ([]int32, error) {
	v.texts = append(v.texts, text)
	v.addSpecial = append(v.addSpecial, addSpecial)
	if v.tokErr != nil {
		return nil, v.tokErr
	}
	out := make([]int32, len(v.promptToks))
	copy(out, v.promptToks)
	return out, nil
}

func (v *fakeVocab) Piece(tok int32) []byte {
	if p, ok := v.pieces[tok]; ok {
		return []byte(p)
	}
	return []byte(fmt.Sprintf("t%d ", tok))
}

func (v *fakeVocab) IsEOG(tok int32) bool     { return v.eog[tok] }
func (v *fakeVocab) IsControl(tok int32) bool { return v.control[tok] }
func (v *fakeVocab) NumTokens() int32         { return v.n }

type decodeCall struct {
	tokens []int32
	pos    int32
}

type fakeContext struct {
	decodes []decodeCall
	// failAt makes the n-th Decode call fail (0-based); -1 disables.
	failAt  int
	cleared int
	closed  int
}

func (c *fakeContext) Decode(tokens []int32, pos int32) error {
	if c.failAt >= 0 && len(c.decodes) == c.failAt {
		return fmt.Errorf("forced decode failure")
	}
	cp := make([]int32, len(tokens))
	copy(cp, tokens)
	c.decodes = append(c.decodes, decodeCall{tokens: cp, pos: pos})
	return nil
}

func (c *fakeContext) Clear()       { c.cleared++ }
func (c *fakeContext) Close() error { c.closed++; return nil }

type fakeChain struct {
	rt       *fakeRuntime
	stages   []runtime.SamplerStage
	accepted []int32
	closed   int
}

func (ch *fakeChain) Sample(_ runtime.Context) (int32, error) { return ch.rt.next(), nil }
func (ch *fakeChain) Accept(tok int32)                        { ch.accepted = append(ch.accepted, tok) }
func (ch *fakeChain) Close() error                            { ch.closed++; return nil }
