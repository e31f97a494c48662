package report

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/devskill-org/menu-co2e/menu"
)

func testDataset() *menu.Dataset {
	return menu.NewDataset(
		[]menu.Day{
			menu.NewDay([]string{"a", "b"}, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.5, Lingon: 0.25}),
			menu.NewDay([]string{"b"}, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.2, Lingon: 0.4}),
			menu.NewDay([]string{"a"}, time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.7, Lingon: 0.1}),
			// future day, excluded
			menu.NewDay([]string{"zzz"}, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), menu.Survey{}),
		},
		[]menu.Dish{
			menu.NewDish("A", 1.0, "a"),
			menu.NewDish("B", 3.0, "b"),
		},
	)
}

func TestBuild(t *testing.T) {
	now := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	s, err := Build(testDataset(), now)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("Expected 3 days, got %d", s.Len())
	}

	expectedMeans := []float64{2.0, 3.0, 1.0}
	expectedCornflakes := []float64{0.5, 0.2, 0.7}
	expectedLingon := []float64{0.25, 0.4, 0.1}

	for i := range expectedMeans {
		if s.MeanCO2e[i] != expectedMeans[i] {
			t.Errorf("Day %d: expected mean %f, got %f", i, expectedMeans[i], s.MeanCO2e[i])
		}
		if s.Cornflakes[i] != expectedCornflakes[i] {
			t.Errorf("Day %d: expected cornflakes %f, got %f", i, expectedCornflakes[i], s.Cornflakes[i])
		}
		if s.Lingon[i] != expectedLingon[i] {
			t.Errorf("Day %d: expected lingon %f, got %f", i, expectedLingon[i], s.Lingon[i])
		}
	}
}

func TestBuildFailsOnUnknownDish(t *testing.T) {
	// with a "now" beyond the future day, its unknown dish is reached
	now := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Build(testDataset(), now)
	if !errors.Is(err, menu.ErrUnknownDish) {
		t.Fatalf("Expected ErrUnknownDish, got %v", err)
	}
}

func TestLinearFit(t *testing.T) {
	tests := []struct {
		name      string
		xs, ys    []float64
		slope     float64
		intercept float64
		wantErr   bool
	}{
		{
			name:      "exact line",
			xs:        []float64{1, 2, 3},
			ys:        []float64{3, 5, 7},
			slope:     2,
			intercept: 1,
		},
		{
			name:      "noisy points",
			xs:        []float64{0, 1, 2, 3},
			ys:        []float64{1, 2, 2, 3},
			slope:     0.6,
			intercept: 1.1,
		},
		{
			name:      "flat",
			xs:        []float64{1, 2},
			ys:        []float64{4, 4},
			slope:     0,
			intercept: 4,
		},
		{
			name:    "single point",
			xs:      []float64{1},
			ys:      []float64{1},
			wantErr: true,
		},
		{
			name:    "vertical",
			xs:      []float64{2, 2, 2},
			ys:      []float64{1, 2, 3},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			xs:      []float64{1, 2},
			ys:      []float64{1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit, err := LinearFit(tt.xs, tt.ys)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got fit %+v", fit)
				}
				return
			}
			if err != nil {
				t.Fatalf("LinearFit returned error: %v", err)
			}
			if math.Abs(fit.Slope-tt.slope) > 1e-9 {
				t.Errorf("Expected slope %f, got %f", tt.slope, fit.Slope)
			}
			if math.Abs(fit.Intercept-tt.intercept) > 1e-9 {
				t.Errorf("Expected intercept %f, got %f", tt.intercept, fit.Intercept)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	s, err := Build(testDataset(), now)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	summary := s.Summarize()
	if summary.Days != 3 {
		t.Errorf("Expected 3 days, got %d", summary.Days)
	}
	if summary.MeanCO2eMin != 1.0 || summary.MeanCO2eMax != 3.0 {
		t.Errorf("Expected range 1..3, got %f..%f", summary.MeanCO2eMin, summary.MeanCO2eMax)
	}
	if summary.CornflakesFit == nil || summary.LingonFit == nil {
		t.Fatal("Expected both fits")
	}
	if summary.CornflakesFit.Slope >= 0 {
		t.Errorf("Expected negative cornflakes slope, got %f", summary.CornflakesFit.Slope)
	}
	if summary.LingonFit.Slope <= 0 {
		t.Errorf("Expected positive lingon slope, got %f", summary.LingonFit.Slope)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := (&Series{}).Summarize()
	if summary.Days != 0 || summary.CornflakesFit != nil || summary.LingonFit != nil {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
}
