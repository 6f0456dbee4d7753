//go:build llama

package runtime

// cgo binding for the in-process llama.cpp backend.
// - We set an rpath of $ORIGIN so the runtime loader finds libllama.so and
//   libggml*.so in the same directory as the built Go binary (./bin).
// - We add -L${SRCDIR}/../../bin so the linker finds libllama.so at link time
//   when building the 'llama' variant.
// - No environment variables are required.

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/llama.cpp/include
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama

#include <stdlib.h>
#include <string.h>
#include "llama.h"

// decode_at submits n tokens at consecutive positions starting at pos,
// requesting logits for the last one. Returns the llama_decode status.
static int decode_at(struct llama_context *ctx, const llama_token *tokens, int n, int pos) {
	struct llama_batch batch = llama_batch_init(n, 0, 1);
	for (int i = 0; i < n; i++) {
		batch.token[batch.n_tokens]     = tokens[i];
		batch.pos[batch.n_tokens]       = pos + i;
		batch.n_seq_id[batch.n_tokens]  = 1;
		batch.seq_id[batch.n_tokens][0] = 0;
		batch.logits[batch.n_tokens]    = (i == n - 1);
		batch.n_tokens++;
	}
	int rc = llama_decode(ctx, batch);
	llama_batch_free(batch);
	return rc;
}

static int is_control_attr(const struct llama_vocab *vocab, llama_token id) {
	return (llama_vocab_get_attr(vocab, id) & LLAMA_TOKEN_ATTR_CONTROL) != 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

var llamaBuilt = true

var backendOnce sync.Once

type llamaRuntime struct{}

// NewLlamaRuntime returns the in-process llama.cpp backend.
func NewLlamaRuntime() Runtime {
	backendOnce.Do(func() { C.llama_backend_init() })
	return llamaRuntime{}
}

func (llamaRuntime) Name() string { return "llama.cpp" }

func (llamaRuntime) LoadModel(path string, params ModelParams) (Model, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	mparams := C.llama_model_default_params()
	if params.GPULayers > 0 {
		mparams.n_gpu_layers = C.int32_t(params.GPULayers)
	}
	m := C.llama_model_load_from_file(cpath, mparams)
	if m == nil {
		return nil, fmt.Errorf("llama_model_load_from_file: %s", path)
	}
	return &llamaModel{m: m, vocab: &llamaVocab{v: C.llama_model_get_vocab(m)}}, nil
}

func (llamaRuntime) NewSamplerChain(stages []SamplerStage) (SamplerChain, error) {
	sparams := C.llama_sampler_chain_default_params()
	chain := C.llama_sampler_chain_init(sparams)
	if chain == nil {
		return nil, fmt.Errorf("llama_sampler_chain_init failed")
	}
	for _, st := range stages {
		var s *C.struct_llama_sampler
		switch st.Kind {
		case StageTemp:
			s = C.llama_sampler_init_temp(C.float(st.Temp))
		case StageTopK:
			s = C.llama_sampler_init_top_k(C.int32_t(st.K))
		case StageTopP:
			s = C.llama_sampler_init_top_p(C.float(st.P), C.size_t(st.MinKeep))
		case StageMinP:
			s = C.llama_sampler_init_min_p(C.float(st.P), C.size_t(st.MinKeep))
		case StagePenalties:
			s = C.llama_sampler_init_penalties(C.int32_t(st.LastN), C.float(st.Repeat), C.float(st.Presence), C.float(st.Frequency))
		case StageMirostatV1:
			s = C.llama_sampler_init_mirostat(C.int32_t(st.NVocab), C.uint32_t(st.Seed), C.float(st.Tau), C.float(st.Eta), C.int32_t(st.M))
		case StageMirostatV2:
			s = C.llama_sampler_init_mirostat_v2(C.uint32_t(st.Seed), C.float(st.Tau), C.float(st.Eta))
		case StageDist:
			s = C.llama_sampler_init_dist(C.uint32_t(st.Seed))
		}
		if s == nil {
			C.llama_sampler_free(chain)
			return nil, fmt.Errorf("sampler stage %d init failed", st.Kind)
		}
		C.llama_sampler_chain_add(chain, s)
	}
	return &llamaChain{c: chain}, nil
}

func (llamaRuntime) ApplyChatTemplate(tmpl string, turns []ChatTurn) (string, error) {
	ctmpl := C.CString(tmpl)
	defer C.free(unsafe.Pointer(ctmpl))

	msgs := make([]C.struct_llama_chat_message, len(turns))
	owned := make([]*C.char, 0, 2*len(turns))
	defer func() {
		for _, p := range owned {
			C.free(unsafe.Pointer(p))
		}
	}()
	for i, t := range turns {
		role := C.CString(t.Role)
		content := C.CString(t.Content)
		owned = append(owned, role, content)
		msgs[i].role = role
		msgs[i].content = content
	}
	var msgp *C.struct_llama_chat_message
	if len(msgs) > 0 {
		msgp = &msgs[0]
	}

	// Length query first, then a buffer sized exactly to the reported length.
	need := C.llama_chat_apply_template(ctmpl, msgp, C.size_t(len(msgs)), C.bool(true), nil, 0)
	if need < 0 {
		return "", fmt.Errorf("llama_chat_apply_template failed (%d)", int(need))
	}
	buf := make([]byte, int(need)+1)
	n := C.llama_chat_apply_template(ctmpl, msgp, C.size_t(len(msgs)), C.bool(true),
		(*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)))
	if n < 0 {
		return "", fmt.Errorf("llama_chat_apply_template failed (%d)", int(n))
	}
	return string(buf[:n]), nil
}

type llamaModel struct {
	m     *C.struct_llama_model
	vocab *llamaVocab
}

func (m *llamaModel) Vocab() Vocab { return m.vocab }

func (m *llamaModel) NewContext(params ContextParams) (Context, error) {
	cparams := C.llama_context_default_params()
	cparams.n_ctx = C.uint32_t(params.NCtx)
	cparams.n_batch = C.uint32_t(params.NBatch)
	ctx := C.llama_init_from_model(m.m, cparams)
	if ctx == nil {
		return nil, fmt.Errorf("llama_init_from_model failed (n_ctx=%d)", params.NCtx)
	}
	return &llamaContext{c: ctx}, nil
}

// ChatTemplate queries tokenizer.chat_template metadata with a bounded probe
// buffer, retrying once with a buffer sized to the reported length.
func (m *llamaModel) ChatTemplate() (string, bool) {
	key := C.CString("tokenizer.chat_template")
	defer C.free(unsafe.Pointer(key))

	buf := make([]byte, 256)
	n := C.llama_model_meta_val_str(m.m, key, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if n < 0 {
		return "", false
	}
	if int(n) >= len(buf) {
		buf = make([]byte, int(n)+1)
		n = C.llama_model_meta_val_str(m.m, key, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
		if n < 0 {
			return "", false
		}
	}
	return string(buf[:n]), true
}

func (m *llamaModel) Desc() string {
	buf := make([]byte, 256)
	n := C.llama_model_desc(m.m, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if n < 0 {
		return ""
	}
	return string(buf[:n])
}

func (m *llamaModel) SizeBytes() uint64 { return uint64(C.llama_model_size(m.m)) }
func (m *llamaModel) NumParams() uint64 { return uint64(C.llama_model_n_params(m.m)) }

func (m *llamaModel) Close() error {
	if m.m != nil {
		C.llama_model_free(m.m)
		m.m = nil
	}
	return nil
}

type llamaVocab struct {
	v *C.struct_llama_vocab
}

func (v *llamaVocab) Tokenize(text string, addSpecial bool) ([]int32, error) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	toks := make([]C.llama_token, len(text)+256)
	n := C.llama_tokenize(v.v, ctext, C.int32_t(len(text)),
		&toks[0], C.int32_t(len(toks)), C.bool(addSpecial), C.bool(false))
	if n < 0 {
		return nil, fmt.Errorf("llama_tokenize failed (%d)", int(n))
	}
	out := make([]int32, int(n))
	for i := range out {
		out[i] = int32(toks[i])
	}
	return out, nil
}

func (v *llamaVocab) Piece(token int32) []byte {
	buf := make([]byte, 512)
	n := C.llama_token_to_piece(v.v, C.llama_token(token),
		(*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)-1), 0, C.bool(false))
	if n <= 0 {
		return nil
	}
	return buf[:n]
}

func (v *llamaVocab) IsEOG(token int32) bool {
	return bool(C.llama_vocab_is_eog(v.v, C.llama_token(token)))
}

func (v *llamaVocab) IsControl(token int32) bool {
	return C.is_control_attr(v.v, C.llama_token(token)) != 0
}

func (v *llamaVocab) NumTokens() int32 { return int32(C.llama_vocab_n_tokens(v.v)) }

type llamaContext struct {
	c *C.struct_llama_context
}

func (c *llamaContext) Decode(tokens []int32, pos int32) error {
	if len(tokens) == 0 {
		return nil
	}
	ctoks := make([]C.llama_token, len(tokens))
	for i, t := range tokens {
		ctoks[i] = C.llama_token(t)
	}
	if rc := C.decode_at(c.c, &ctoks[0], C.int(len(ctoks)), C.int(pos)); rc != 0 {
		return fmt.Errorf("llama_decode failed (%d)", int(rc))
	}
	return nil
}

func (c *llamaContext) Clear() { C.llama_kv_self_clear(c.c) }

func (c *llamaContext) Close() error {
	if c.c != nil {
		C.llama_free(c.c)
		c.c = nil
	}
	return nil
}

type llamaChain struct {
	c *C.struct_llama_sampler
}

func (ch *llamaChain) Sample(ctx Context) (int32, error) {
	lc, ok := ctx.(*llamaContext)
	if !ok || lc.c == nil {
		return 0, fmt.Errorf("sampler requires a llama context")
	}
	return int32(C.llama_sampler_sample(ch.c, lc.c, -1)), nil
}

func (ch *llamaChain) Accept(token int32) {
	C.llama_sampler_accept(ch.c, C.llama_token(token))
}

func (ch *llamaChain) Close() error {
	if ch.c != nil {
		C.llama_sampler_free(ch.c)
		ch.c = nil
	}
	return nil
}
