// Package pipeline wires the menu API client, the cache store and the report
// into the runnable modes of the application: download, list, plot and serve.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/devskill-org/menu-co2e/cache"
	"github.com/devskill-org/menu-co2e/logger"
	"github.com/devskill-org/menu-co2e/menu"
	"github.com/devskill-org/menu-co2e/potato"
	"github.com/devskill-org/menu-co2e/report"
	"go.uber.org/zap"
)

// Pipeline runs the acquisition and analysis paths over one store
type Pipeline struct {
	config   *Config
	location *time.Location
	fetcher  menu.Fetcher
	store    menu.Store
	closer   io.Closer
	logger   *zap.SugaredLogger

	// now is replaceable in tests
	now func() time.Time
}

// New builds a pipeline from config. The postgres backend connects
// immediately; call Close when done.
func New(ctx context.Context, config *Config, log *zap.SugaredLogger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	loc, err := time.LoadLocation(config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}

	client := potato.NewClientWithHTTPClient(
		&http.Client{Timeout: config.APITimeout},
		config.UserAgent,
		logger.Named(log, "potato"),
	)
	client.SetBaseURL(config.BaseURL)
	client.SetConcurrency(config.FetchConcurrency)
	client.SetLocation(loc)

	p := &Pipeline{
		config:   config,
		location: loc,
		fetcher:  client,
		logger:   log,
		now:      time.Now,
	}

	switch config.CacheBackend {
	case "postgres":
		store, err := cache.OpenPostgresStore(ctx, config.PostgresConnString, logger.Named(log, "cache"))
		if err != nil {
			return nil, err
		}
		p.store = store
		p.closer = store
	default:
		p.store = cache.NewFileStore(config.CacheDir, logger.Named(log, "cache"))
	}

	return p, nil
}

// NewWithDeps builds a pipeline around an existing fetcher and store
func NewWithDeps(config *Config, fetcher menu.Fetcher, store menu.Store, log *zap.SugaredLogger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	loc, err := time.LoadLocation(config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}

	return &Pipeline{
		config:   config,
		location: loc,
		fetcher:  fetcher,
		store:    store,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Close releases the store connection, if any
func (p *Pipeline) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// GetConfig returns the pipeline configuration
func (p *Pipeline) GetConfig() *Config {
	return p.config
}

// RunDownload fetches a fresh snapshot and saves it to the store
func (p *Pipeline) RunDownload(ctx context.Context) (*menu.Dataset, error) {
	p.logger.Infof("Downloading dataset from %s", p.config.BaseURL)

	dataset, err := menu.Download(ctx, p.fetcher)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	if err := dataset.Save(ctx, p.store); err != nil {
		return nil, fmt.Errorf("save failed: %w", err)
	}

	p.logger.Infof("Cached %d days and %d dishes", len(dataset.Days), len(dataset.Dishes))
	return dataset, nil
}

// Load reads the cached snapshot
func (p *Pipeline) Load(ctx context.Context) (*menu.Dataset, error) {
	dataset, err := menu.Load(ctx, p.store, p.location)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached dataset: %w", err)
	}
	return dataset, nil
}

// RunList loads the cached snapshot and prints every dish title, followed by
// the served days.
func (p *Pipeline) RunList(ctx context.Context, w io.Writer) error {
	dataset, err := p.Load(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(dataset.Dishes))
	for id := range dataset.Dishes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		fmt.Fprintln(w, dataset.Dishes[id].Title)
	}

	if len(dataset.Days) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-10s  %-9s  %6s  %10s  %6s  %9s  %s\n", "Date", "Weekday", "Dishes", "Cornflakes", "Lingon", "Daylight", "Mean CO2e")
	fmt.Fprintln(w, strings.Repeat("-", 74))

	for _, day := range dataset.Days {
		mean := "n/a"
		if m, err := dataset.MeanCO2e(day); err == nil {
			mean = fmt.Sprintf("%.3f kg", m)
		} else {
			p.logger.Debugf("No mean for %s: %v", day.Date.Format(time.DateOnly), err)
		}

		daylight := day.Daylight(p.config.Latitude, p.config.Longitude).Round(time.Minute)

		fmt.Fprintf(w, "%-10s  %-9s  %6d  %10.2f  %6.2f  %9s  %s\n",
			day.Date.Format(time.DateOnly),
			day.Weekday(),
			len(day.Dishes),
			day.Cornflakes,
			day.Lingon,
			formatDuration(daylight),
			mean,
		)
	}

	return nil
}

// RunPlot loads the cached snapshot, builds the series over past days and
// writes the chart to the configured plot file.
func (p *Pipeline) RunPlot(ctx context.Context) (*report.Summary, error) {
	dataset, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}

	series, err := report.Build(dataset, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}

	if err := report.WriteFile(series, p.config.PlotFile); err != nil {
		return nil, fmt.Errorf("failed to write plot: %w", err)
	}

	summary := series.Summarize()
	p.logger.Infof("Plotted %d past days to %s", summary.Days, p.config.PlotFile)
	if summary.CornflakesFit != nil {
		p.logger.Infof("Cornflakes trend: %.4f per kg CO2e (intercept %.4f)", summary.CornflakesFit.Slope, summary.CornflakesFit.Intercept)
	}
	if summary.LingonFit != nil {
		p.logger.Infof("Lingon trend: %.4f per kg CO2e (intercept %.4f)", summary.LingonFit.Slope, summary.LingonFit.Intercept)
	}

	return &summary, nil
}

// Serve runs the dashboard until ctx is cancelled
func (p *Pipeline) Serve(ctx context.Context) error {
	if p.config.ServerPort <= 0 {
		return fmt.Errorf("dashboard disabled: server_port is 0")
	}

	ws := NewWebServer(p, p.config.ServerPort)
	if err := ws.Start(ctx); err != nil {
		return err
	}

	p.logger.Infof("Dashboard listening on :%d", p.config.ServerPort)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return ws.Stop(shutdownCtx)
}

// formatDuration formats a duration as hours and minutes
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d - h*time.Hour) / time.Minute
	return fmt.Sprintf("%dh%02dm", h, m)
}
