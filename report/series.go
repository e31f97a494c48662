// Package report derives per-day statistics from a menu dataset and renders
// them as a scatter chart of survey results against mean dish emissions.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/devskill-org/menu-co2e/menu"
)

// ErrNotEnoughPoints is returned when a fit needs more data than it was given.
var ErrNotEnoughPoints = errors.New("not enough points")

// Series holds one entry per past day, all slices in PastDays order.
type Series struct {
	Dates      []time.Time
	MeanCO2e   []float64
	Cornflakes []float64
	Lingon     []float64
}

// Build computes the series over the days dated before now. A day whose
// mean cannot be computed fails the whole build.
func Build(dataset *menu.Dataset, now time.Time) (*Series, error) {
	past := dataset.PastDays(now)

	s := &Series{
		Dates:      make([]time.Time, 0, len(past)),
		MeanCO2e:   make([]float64, 0, len(past)),
		Cornflakes: make([]float64, 0, len(past)),
		Lingon:     make([]float64, 0, len(past)),
	}

	for _, day := range past {
		mean, err := dataset.MeanCO2e(day)
		if err != nil {
			return nil, fmt.Errorf("failed to compute mean co2e: %w", err)
		}

		s.Dates = append(s.Dates, day.Date)
		s.MeanCO2e = append(s.MeanCO2e, mean)
		s.Cornflakes = append(s.Cornflakes, day.Cornflakes)
		s.Lingon = append(s.Lingon, day.Lingon)
	}

	return s, nil
}

// Len returns the number of days in the series
func (s *Series) Len() int {
	return len(s.Dates)
}

// Fit is a least-squares line y = Slope*x + Intercept.
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at x
func (f Fit) At(x float64) float64 {
	return f.Slope*x + f.Intercept
}

// LinearFit computes the ordinary least-squares line through the points.
func LinearFit(xs, ys []float64) (Fit, error) {
	if len(xs) != len(ys) {
		return Fit{}, fmt.Errorf("length mismatch: %d x values, %d y values", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return Fit{}, fmt.Errorf("linear fit over %d points: %w", len(xs), ErrNotEnoughPoints)
	}

	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}

	if sxx == 0 {
		return Fit{}, fmt.Errorf("all x values equal: %w", ErrNotEnoughPoints)
	}

	slope := sxy / sxx
	return Fit{Slope: slope, Intercept: meanY - slope*meanX}, nil
}

// Summary is a compact description of a series
type Summary struct {
	Days          int     `json:"days"`
	MeanCO2eMin   float64 `json:"mean_co2e_min"`
	MeanCO2eMax   float64 `json:"mean_co2e_max"`
	CornflakesFit *Fit    `json:"cornflakes_fit,omitempty"`
	LingonFit     *Fit    `json:"lingon_fit,omitempty"`
}

// Summarize returns the day count, value range and both trend lines. A trend
// that cannot be fitted is left nil.
func (s *Series) Summarize() Summary {
	summary := Summary{Days: s.Len()}

	for i, v := range s.MeanCO2e {
		if i == 0 || v < summary.MeanCO2eMin {
			summary.MeanCO2eMin = v
		}
		if i == 0 || v > summary.MeanCO2eMax {
			summary.MeanCO2eMax = v
		}
	}

	if fit, err := LinearFit(s.MeanCO2e, s.Cornflakes); err == nil {
		summary.CornflakesFit = &fit
	}
	if fit, err := LinearFit(s.MeanCO2e, s.Lingon); err == nil {
		summary.LingonFit = &fit
	}

	return summary
}
