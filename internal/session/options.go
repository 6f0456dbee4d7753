package session

import "llamad/internal/runtime"

// SamplingConfig is the full sampling configuration of a session. Values are
// always clamped to their valid domains before use.
type SamplingConfig struct {
	Temperature      float32
	TopK             int32
	TopP             float32
	MinP             float32
	RepeatPenalty    float32
	RepeatLastN      int32
	PresencePenalty  float32
	FrequencyPenalty float32
	// Mirostat selects entropy-targeted sampling: 0 = off, 1 = v1, 2 = v2.
	Mirostat    int32
	MirostatTau float32
	MirostatEta float32
	Seed        int32
	// MaxTokens is the default generation budget; -1 means unbounded
	// (bounded at generation time by the engine's fallback ceiling).
	MaxTokens int32
}

// DefaultSampling returns the engine defaults.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:      0.80,
		TopK:             40,
		TopP:             0.95,
		MinP:             0.05,
		RepeatPenalty:    1.10,
		RepeatLastN:      64,
		PresencePenalty:  0.00,
		FrequencyPenalty: 0.00,
		Mirostat:         0,
		MirostatTau:      5.00,
		MirostatEta:      0.10,
		Seed:             -1,
		MaxTokens:        -1,
	}
}

// Overrides is a sparse sampling-configuration override. Only non-nil fields
// are applied; everything else keeps its prior value.
type Overrides struct {
	Temperature      *float32
	TopK             *int32
	TopP             *float32
	MinP             *float32
	RepeatPenalty    *float32
	RepeatLastN      *int32
	PresencePenalty  *float32
	FrequencyPenalty *float32
	Mirostat         *int32
	MirostatTau      *float32
	MirostatEta      *float32
	Seed             *int32
	MaxTokens        *int32
}

// mergeClamp applies ov over cur and clamps every field to its valid domain.
// The result is fully applied or not at all; cur is never mutated.
func mergeClamp(cur SamplingConfig, ov *Overrides) SamplingConfig {
	out := cur
	if ov != nil {
		if ov.Temperature != nil {
			out.Temperature = *ov.Temperature
		}
		if ov.TopK != nil {
			out.TopK = *ov.TopK
		}
		if ov.TopP != nil {
			out.TopP = *ov.TopP
		}
		if ov.MinP != nil {
			out.MinP = *ov.MinP
		}
		if ov.RepeatPenalty != nil {
			out.RepeatPenalty = *ov.RepeatPenalty
		}
		if ov.RepeatLastN != nil {
			out.RepeatLastN = *ov.RepeatLastN
		}
		if ov.PresencePenalty != nil {
			out.PresencePenalty = *ov.PresencePenalty
		}
		if ov.FrequencyPenalty != nil {
			out.FrequencyPenalty = *ov.FrequencyPenalty
		}
		if ov.Mirostat != nil {
			out.Mirostat = *ov.Mirostat
		}
		if ov.MirostatTau != nil {
			out.MirostatTau = *ov.MirostatTau
		}
		if ov.MirostatEta != nil {
			out.MirostatEta = *ov.MirostatEta
		}
		if ov.Seed != nil {
			out.Seed = *ov.Seed
		}
		if ov.MaxTokens != nil {
			out.MaxTokens = *ov.MaxTokens
		}
	}
	return clamp(out)
}

// clamp normalizes a configuration to its valid domains. Idempotent.
func clamp(c SamplingConfig) SamplingConfig {
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	if c.TopK < 1 {
		c.TopK = 1
	}
	if c.TopP < 0 {
		c.TopP = 0
	}
	if c.TopP > 1 {
		c.TopP = 1
	}
	if c.MinP < 0 {
		c.MinP = 0
	}
	if c.MinP > 1 {
		c.MinP = 1
	}
	// A negative repeat penalty is nonsense; reset to neutral.
	if c.RepeatPenalty < 0 {
		c.RepeatPenalty = 1.0
	}
	if c.RepeatLastN < 0 {
		c.RepeatLastN = 0
	}
	if c.Mirostat < 0 || c.Mirostat > 2 {
		c.Mirostat = 0
	}
	if c.MaxTokens < -1 {
		c.MaxTokens = -1
	}
	return c
}

// samplerStages builds the ordered stage list for a configuration.
// The order is a design contract: temperature, top-k, top-p, min-p,
// penalties, optional mirostat, then the final seeded draw. Mirostat does
// not replace the preceding filters; they still narrow the candidate set.
func samplerStages(c SamplingConfig, nVocab int32) []runtime.SamplerStage {
	stages := []runtime.SamplerStage{
		{Kind: runtime.StageTemp, Temp: c.Temperature},
		{Kind: runtime.StageTopK, K: c.TopK},
		{Kind: runtime.StageTopP, P: c.TopP, MinKeep: 1},
		{Kind: runtime.StageMinP, P: c.MinP, MinKeep: 1},
		{
			Kind:      runtime.StagePenalties,
			LastN:     c.RepeatLastN,
			Repeat:    c.RepeatPenalty,
			Presence:  c.PresencePenalty,
			Frequency: c.FrequencyPenalty,
		},
	}
	seed := uint32(c.Seed)
	switch c.Mirostat {
	case 1:
		stages = append(stages, runtime.SamplerStage{
			Kind:   runtime.StageMirostatV1,
			NVocab: nVocab,
			Seed:   seed,
			Tau:    c.MirostatTau,
			Eta:    c.MirostatEta,
			M:      100,
		})
	case 2:
		stages = append(stages, runtime.SamplerStage{
			Kind: runtime.StageMirostatV2,
			Seed: seed,
			Tau:  c.MirostatTau,
			Eta:  c.MirostatEta,
		})
	}
	return append(stages, runtime.SamplerStage{Kind: runtime.StageDist, Seed: seed})
}
