// Package quality implements the quality gate: pass/fail against a threshold,
// color banding, per-dimension breakdowns and relative trend levels.
package quality

import (
	"math"
	"slices"
	"strings"
)

// DefaultThreshold applies when a summary carries no threshold.
const DefaultThreshold = 70.0

// comfortMargin is how far above the threshold a score must be to show green.
const comfortMargin = 10.0

// trendLevels is the number of sparkline buckets.
const trendLevels = 8

var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// Color is the band a score renders in.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)

// Summary is the quality data handed over by the evaluation collaborator.
// History is chronological (oldest first) and advisory only.
type Summary struct {
	Score      float64            `json:"score"`
	Threshold  *float64           `json:"threshold,omitempty"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
	History    []float64          `json:"history,omitempty"`
}

// EffectiveThreshold returns the configured threshold or DefaultThreshold.
func (s *Summary) EffectiveThreshold() float64 {
	if s.Threshold == nil {
		return DefaultThreshold
	}
	return *s.Threshold
}

// Result is the gate decision for one score.
type Result struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Pass      bool    `json:"pass"`
	Color     Color   `json:"color"`
	RetryHint bool    `json:"retry_hint"`
}

// Band colors a score: green at threshold+10 or above, yellow when merely
// passing, red otherwise. A passing score can still be yellow.
func Band(score, threshold float64) Color {
	switch {
	case score >= threshold+comfortMargin:
		return ColorGreen
	case score >= threshold:
		return ColorYellow
	default:
		return ColorRed
	}
}

// Evaluate applies the gate to score. The retry hint is shown only on failure;
// retry policy itself belongs to the caller.
func Evaluate(score, threshold float64) Result {
	pass := score >= threshold
	return Result{
		Score:     score,
		Threshold: threshold,
		Pass:      pass,
		Color:     Band(score, threshold),
		RetryHint: !pass,
	}
}

// DimensionResult is one named dimension banded against the global threshold.
type DimensionResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Color Color   `json:"color"`
}

// Dimensions bands every dimension with the same rule and threshold as the
// overall score, sorted by name.
func Dimensions(dims map[string]float64, threshold float64) []DimensionResult {
	out := make([]DimensionResult, 0, len(dims))
	for name, score := range dims {
		out = append(out, DimensionResult{Name: name, Score: score, Color: Band(score, threshold)})
	}
	slices.SortFunc(out, func(a, b DimensionResult) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Trend buckets history into 0..7 relative to its own min and max. Two trends
// with similar shapes map to similar levels regardless of absolute scale.
func Trend(history []float64) []int {
	if len(history) == 0 {
		return nil
	}
	lo, hi := slices.Min(history), slices.Max(history)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	levels := make([]int, len(history))
	for i, v := range history {
		levels[i] = int(math.Round((v - lo) / span * (trendLevels - 1)))
	}
	return levels
}

// Sparkline renders trend levels with block glyphs.
func Sparkline(levels []int) string {
	var b strings.Builder
	for _, l := range levels {
		l = max(0, min(l, trendLevels-1))
		b.WriteRune(sparkGlyphs[l])
	}
	return b.String()
}

// Gate bundles everything a quality view renders.
type Gate struct {
	Result
	Dimensions []DimensionResult `json:"dimensions,omitempty"`
	Trend      []int             `json:"trend,omitempty"`
	Sparkline  string            `json:"sparkline,omitempty"`
}

// Report evaluates a full summary.
func Report(s Summary) Gate {
	threshold := s.EffectiveThreshold()
	g := Gate{Result: Evaluate(s.Score, threshold)}
	if len(s.Dimensions) > 0 {
		g.Dimensions = Dimensions(s.Dimensions, threshold)
	}
	if len(s.History) > 0 {
		g.Trend = Trend(s.History)
		g.Sparkline = Sparkline(g.Trend)
	}
	return g
}

// Unavailable is the neutral gate shown when no quality data has arrived.
func Unavailable() Gate {
	return Gate{Result: Result{Threshold: DefaultThreshold, Color: ColorGray}}
}
