package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// DefaultPlotFile is where the chart is written by default.
const DefaultPlotFile = "plot.png"

const (
	chartWidth  = 1024
	chartHeight = 640
)

// pointStyle returns a style that renders points only (no connecting line)
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    5,
		DotColor:    col,
	}
}

// trendStyle returns a dashed line style for a fitted trend
func trendStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth:     2,
		StrokeColor:     col,
		StrokeDashArray: []float64{6, 4},
	}
}

// Render draws both survey quantities against mean co2e, each with its
// least-squares line, and writes the PNG to w.
func Render(s *Series, w io.Writer) error {
	if s.Len() == 0 {
		return fmt.Errorf("nothing to plot: %w", ErrNotEnoughPoints)
	}

	var series []chart.Series
	series = append(series, scatterWithTrend("Cornflakes", s.MeanCO2e, s.Cornflakes, chart.ColorBlue)...)
	series = append(series, scatterWithTrend("Lingon", s.MeanCO2e, s.Lingon, chart.ColorRed)...)

	graph := chart.Chart{
		Title:      "Survey results vs. mean CO2e per day",
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Series:     series,
		XAxis: chart.XAxis{
			Name:  "Mean CO2e (kg per portion)",
			Range: xRange(s.MeanCO2e),
		},
		YAxis: chart.YAxis{
			Name:           "Share",
			Range:          yRange(s.Cornflakes, s.Lingon),
			ValueFormatter: chart.PercentValueFormatter,
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}

	return nil
}

// WriteFile renders the chart to path, replacing any existing file. Nothing
// is written if rendering fails.
func WriteFile(s *Series, path string) error {
	var buf bytes.Buffer
	if err := Render(s, &buf); err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// scatterWithTrend returns the point series and, when a fit exists, a line
// spanning the x range.
func scatterWithTrend(name string, xs, ys []float64, col drawing.Color) []chart.Series {
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   pointStyle(col),
		},
	}

	fit, err := LinearFit(xs, ys)
	if err != nil {
		return series
	}

	minX, maxX := slices.Min(xs), slices.Max(xs)
	return append(series, chart.ContinuousSeries{
		Name:    name + " trend",
		XValues: []float64{minX, maxX},
		YValues: []float64{fit.At(minX), fit.At(maxX)},
		Style:   trendStyle(col),
	})
}

// xRange spans the observed values, widened around a single value so the
// range never collapses to zero.
func xRange(xs []float64) *chart.ContinuousRange {
	minX, maxX := slices.Min(xs), slices.Max(xs)
	if minX == maxX {
		minX, maxX = minX-0.5, maxX+0.5
	}
	return &chart.ContinuousRange{Min: minX, Max: maxX}
}

// yRange always covers 0% to 100% and grows to fit values outside it.
func yRange(ys ...[]float64) *chart.ContinuousRange {
	r := &chart.ContinuousRange{Min: 0, Max: 1}
	for _, values := range ys {
		r.Min = min(r.Min, slices.Min(values))
		r.Max = max(r.Max, slices.Max(values))
	}
	return r
}
