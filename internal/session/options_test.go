package session

import (
	"testing"

	"llamad/internal/runtime"
)

func f32(v float32) *float32 { return &v }
func i32(v int32) *int32     { return &v }

func TestMergeClampDomains(t *testing.T) {
	cfg := mergeClamp(DefaultSampling(), &Overrides{
		Temperature:   f32(5.0),
		TopK:          i32(0),
		TopP:          f32(1.5),
		MinP:          f32(-0.2),
		RepeatPenalty: f32(-1.0),
		MaxTokens:     i32(-7),
		Mirostat:      i32(9),
	})
	if cfg.Temperature != 2.0 {
		t.Errorf("temperature = %v, want 2.0", cfg.Temperature)
	}
	if cfg.TopK != 1 {
		t.Errorf("top_k = %v, want 1", cfg.TopK)
	}
	if cfg.TopP != 1.0 {
		t.Errorf("top_p = %v, want 1.0", cfg.TopP)
	}
	if cfg.MinP != 0.0 {
		t.Errorf("min_p = %v, want 0.0", cfg.MinP)
	}
	if cfg.RepeatPenalty != 1.0 {
		t.Errorf("repeat_penalty = %v, want 1.0", cfg.RepeatPenalty)
	}
	if cfg.MaxTokens != -1 {
		t.Errorf("max_tokens = %v, want -1", cfg.MaxTokens)
	}
	if cfg.Mirostat != 0 {
		t.Errorf("mirostat = %v, want 0", cfg.Mirostat)
	}
}

func TestMergeClampIdempotent(t *testing.T) {
	ov := &Overrides{Temperature: f32(5.0), TopP: f32(2.0)}
	once := mergeClamp(DefaultSampling(), ov)
	twice := mergeClamp(once, ov)
	if once != twice {
		t.Fatalf("clamping not idempotent: %+v vs %+v", once, twice)
	}
	if clamp(once) != once {
		t.Fatalf("clamp of a clamped config changed it")
	}
}

func TestMergeClampSparse(t *testing.T) {
	base := DefaultSampling()
	got := mergeClamp(base, &Overrides{TopK: i32(7)})
	if got.TopK != 7 {
		t.Fatalf("top_k = %v, want 7", got.TopK)
	}
	// All other fields keep their prior values.
	want := base
	want.TopK = 7
	if got != want {
		t.Fatalf("unexpected side effects: %+v", got)
	}

	if got := mergeClamp(base, nil); got != base {
		t.Fatalf("nil override changed config: %+v", got)
	}
}

func TestSamplerStageOrder(t *testing.T) {
	want := []runtime.StageKind{
		runtime.StageTemp, runtime.StageTopK, runtime.StageTopP,
		runtime.StageMinP, runtime.StagePenalties, runtime.StageDist,
	}
	stages := samplerStages(DefaultSampling(), 100)
	if len(stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(stages), len(want))
	}
	for i, k := range want {
		if stages[i].Kind != k {
			t.Errorf("stage %d = %v, want %v", i, stages[i].Kind, k)
		}
	}
}

func TestSamplerStagesMirostat(t *testing.T) {
	cfg := DefaultSampling()
	cfg.Mirostat = 1
	stages := samplerStages(cfg, 32000)
	if got := stages[len(stages)-2]; got.Kind != runtime.StageMirostatV1 || got.NVocab != 32000 || got.M != 100 {
		t.Fatalf("mirostat v1 stage wrong: %+v", got)
	}
	if stages[len(stages)-1].Kind != runtime.StageDist {
		t.Fatalf("final stage must be the seeded draw")
	}

	cfg.Mirostat = 2
	stages = samplerStages(cfg, 32000)
	if stages[len(stages)-2].Kind != runtime.StageMirostatV2 {
		t.Fatalf("expected mirostat v2 stage")
	}
	// The preceding filters are still present before mirostat.
	if stages[0].Kind != runtime.StageTemp || stages[4].Kind != runtime.StagePenalties {
		t.Fatalf("filters must precede mirostat")
	}
}
