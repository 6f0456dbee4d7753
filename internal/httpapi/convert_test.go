package httpapi

import (
	"testing"

	"llamad/pkg/types"
)

func TestToOverridesSparse(t *testing.T) {
	if toOverrides(nil) != nil {
		t.Fatalf("nil options must stay nil")
	}
	temp := 0.5
	np := 128
	ov := toOverrides(&types.SamplingOptions{Temperature: &temp, NumPredict: &np})
	if ov.Temperature == nil || *ov.Temperature != 0.5 {
		t.Fatalf("temperature: %+v", ov.Temperature)
	}
	if ov.MaxTokens == nil || *ov.MaxTokens != 128 {
		t.Fatalf("num_predict must map to the budget: %+v", ov.MaxTokens)
	}
	if ov.TopK != nil || ov.Seed != nil {
		t.Fatalf("absent fields must stay nil")
	}
}

func TestToInt32s(t *testing.T) {
	if toInt32s(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
	out := toInt32s([]int{1, 2, 3})
	if len(out) != 3 || out[2] != 3 {
		t.Fatalf("out = %v", out)
	}
}

func TestToTurns(t *testing.T) {
	turns := toTurns([]types.ChatMessage{{Role: "user", Content: "hi"}})
	if len(turns) != 1 || turns[0].Role != "user" || turns[0].Content != "hi" {
		t.Fatalf("turns = %+v", turns)
	}
}
