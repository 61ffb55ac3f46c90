package run

import "errors"

// Summarize computes derived statistics over a completed results sequence.
// Failed cases contribute a 0.0 score; their latency is the measured
// time-to-failure, so timed-out calls count their full wait. Defined only for
// non-empty input: an empty suite is rejected at load time, not here.
func Summarize(results []Result) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, errors.New("run: summarize empty results")
	}

	var (
		passCount  int
		scoreSum   float64
		latencySum int64
	)
	for _, r := range results {
		if r.Passed {
			passCount++
		}
		scoreSum += r.Score
		latencySum += r.LatencyMs
	}

	n := float64(len(results))
	return Summary{
		PassCount:    passCount,
		AvgScore:     scoreSum / n,
		AvgLatencyMs: float64(latencySum) / n,
	}, nil
}
