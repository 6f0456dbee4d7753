package httpapi

import (
	"llamad/internal/runtime"
	"llamad/internal/session"
	"llamad/pkg/types"
)

// Wire-to-engine conversions. The JSON surface uses plain ints and float64s;
// the engine uses the runtime's native widths.

func toInt32s(in []int) []int32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func toInt32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func toFloat32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func toTurns(msgs []types.ChatMessage) []runtime.ChatTurn {
	out := make([]runtime.ChatTurn, len(msgs))
	for i, m := range msgs {
		out[i] = runtime.ChatTurn{Role: m.Role, Content: m.Content}
	}
	return out
}

func toOverrides(o *types.SamplingOptions) *session.Overrides {
	if o == nil {
		return nil
	}
	return &session.Overrides{
		Temperature:      toFloat32Ptr(o.Temperature),
		TopK:             toInt32Ptr(o.TopK),
		TopP:             toFloat32Ptr(o.TopP),
		MinP:             toFloat32Ptr(o.MinP),
		RepeatPenalty:    toFloat32Ptr(o.RepeatPenalty),
		RepeatLastN:      toInt32Ptr(o.RepeatLastN),
		PresencePenalty:  toFloat32Ptr(o.PresencePenalty),
		FrequencyPenalty: toFloat32Ptr(o.FrequencyPenalty),
		Mirostat:         toInt32Ptr(o.Mirostat),
		MirostatTau:      toFloat32Ptr(o.MirostatTau),
		MirostatEta:      toFloat32Ptr(o.MirostatEta),
		Seed:             toInt32Ptr(o.Seed),
		MaxTokens:        toInt32Ptr(o.NumPredict),
	}
}
