package session

import "time"

// Telemetry accumulates wall-clock and token counts for the last ingestion
// and generation phases of a session.
type Telemetry struct {
	EvalDuration time.Duration // prompt ingestion
	GenDuration  time.Duration // token generation
	Evaluated    int           // tokens ingested
	Generated    int           // tokens generated
}

// EvalTPS is the ingestion throughput in tokens/second. Zero when no time
// was measured, never NaN or Inf.
func (t Telemetry) EvalTPS() float64 { return tps(t.Evaluated, t.EvalDuration) }

// GenTPS is the generation throughput in tokens/second.
func (t Telemetry) GenTPS() float64 { return tps(t.Generated, t.GenDuration) }

func tps(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
