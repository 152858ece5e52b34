package quality_test

import (
	"testing"

	"github.com/Strob0t/forgetop/internal/domain/quality"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		wantPass  bool
		wantColor quality.Color
	}{
		{"comfortable pass", 85, true, quality.ColorGreen},
		{"exactly threshold plus margin", 80, true, quality.ColorGreen},
		{"marginal pass", 75, true, quality.ColorYellow},
		{"exactly threshold", 70, true, quality.ColorYellow},
		{"fail", 50, false, quality.ColorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := quality.Evaluate(tt.score, 70)
			if r.Pass != tt.wantPass {
				t.Errorf("pass = %v, want %v", r.Pass, tt.wantPass)
			}
			if r.Color != tt.wantColor {
				t.Errorf("color = %s, want %s", r.Color, tt.wantColor)
			}
			if r.RetryHint != !tt.wantPass {
				t.Errorf("retry hint = %v, want %v", r.RetryHint, !tt.wantPass)
			}
		})
	}
}

func TestDefaultThreshold(t *testing.T) {
	s := quality.Summary{Score: 72}
	g := quality.Report(s)
	if g.Threshold != quality.DefaultThreshold {
		t.Fatalf("expected default threshold, got %v", g.Threshold)
	}
	if !g.Pass || g.Color != quality.ColorYellow {
		t.Fatalf("unexpected gate: %+v", g.Result)
	}

	custom := 90.0
	s.Threshold = &custom
	if quality.Report(s).Pass {
		t.Fatal("72 must fail a 90 threshold")
	}
}

func TestDimensionsUseGlobalThreshold(t *testing.T) {
	dims := quality.Dimensions(map[string]float64{
		"tests":    95,
		"lint":     72,
		"security": 40,
	}, 70)

	want := []struct {
		name  string
		color quality.Color
	}{
		{"lint", quality.ColorYellow},
		{"security", quality.ColorRed},
		{"tests", quality.ColorGreen},
	}
	for i, w := range want {
		if dims[i].Name != w.name || dims[i].Color != w.color {
			t.Errorf("dims[%d] = %s/%s, want %s/%s", i, dims[i].Name, dims[i].Color, w.name, w.color)
		}
	}
}

func TestTrendRelativeLevels(t *testing.T) {
	levels := quality.Trend([]float64{60, 70, 80})
	want := []int{0, 4, 7}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("levels = %v, want %v", levels, want)
		}
	}

	// Same shape, different absolute scale.
	other := quality.Trend([]float64{10, 50, 90})
	for i := range want {
		if other[i] != want[i] {
			t.Fatalf("relative levels differ: %v vs %v", other, want)
		}
	}
}

func TestTrendFlatHistory(t *testing.T) {
	levels := quality.Trend([]float64{75, 75, 75})
	for _, l := range levels {
		if l != 0 {
			t.Fatalf("flat history must map to level 0, got %v", levels)
		}
	}
	if quality.Trend(nil) != nil {
		t.Fatal("empty history yields no levels")
	}
}

func TestSparkline(t *testing.T) {
	if got := quality.Sparkline([]int{0, 7, 3}); got != "▁█▄" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := quality.Sparkline([]int{-2, 12}); got != "▁█" {
		t.Fatalf("out-of-range levels must clamp, got %q", got)
	}
}

func TestReportIncludesTrendAndDimensions(t *testing.T) {
	g := quality.Report(quality.Summary{
		Score:      85,
		Dimensions: map[string]float64{"tests": 90},
		History:    []float64{70, 85},
	})
	if len(g.Dimensions) != 1 || len(g.Trend) != 2 || g.Sparkline == "" {
		t.Fatalf("incomplete gate: %+v", g)
	}
}

func TestUnavailableIsNeutral(t *testing.T) {
	g := quality.Unavailable()
	if g.Color != quality.ColorGray || g.RetryHint {
		t.Fatalf("unexpected neutral gate: %+v", g)
	}
}
