package potato

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/devskill-org/menu-co2e/menu"
	"github.com/devskill-org/menu-co2e/utils"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the production menu API.
const DefaultBaseURL = "https://potato.xn--sdermalmsskolan-8sb.com"

// timestampLayouts are tried in order when reading day dates.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
}

// Client represents a client for the menu API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	concurrency int
	location    *time.Location
	validate    *validator.Validate
	logger      *zap.SugaredLogger
}

// NewClient creates a new client for the menu API
func NewClient(userAgent string, logger *zap.SugaredLogger) *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, userAgent, logger)
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     DefaultBaseURL,
		userAgent:   userAgent,
		concurrency: 1,
		location:    time.UTC,
		validate:    validator.New(),
		logger:      logger,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetConcurrency sets how many emissions lookups may run at once. Values
// below 1 are treated as 1.
func (c *Client) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	c.concurrency = n
}

// SetLocation sets the location day dates are normalized to
func (c *Client) SetLocation(loc *time.Location) {
	c.location = loc
}

// FetchDays retrieves the menu and returns one Day per element. The API
// carries no survey data, so every day gets the zero Survey.
func (c *Client) FetchDays(ctx context.Context) ([]menu.Day, error) {
	var payloads []DayPayload
	if err := c.getJSON(ctx, c.baseURL+"/menu", &payloads); err != nil {
		return nil, err
	}

	c.logger.Infof("Found %d days!", len(payloads))

	days := make([]menu.Day, 0, len(payloads))
	for i, p := range payloads {
		if err := c.check(p); err != nil {
			return nil, fmt.Errorf("day %d: %w", i, err)
		}

		date, err := parseTimestamp(p.Date)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", i, err)
		}

		ids := make([]string, 0, len(p.Dishes))
		for _, ref := range p.Dishes {
			ids = append(ids, ref.ID)
		}

		days = append(days, menu.NewDay(ids, utils.StartOfDay(date, c.location), menu.Survey{}))
	}

	return days, nil
}

// FetchDishes retrieves the dish index and resolves the emissions of every
// dish. The result keeps the order of the index.
func (c *Client) FetchDishes(ctx context.Context) ([]menu.Dish, error) {
	var payloads []DishPayload
	if err := c.getJSON(ctx, c.baseURL+"/dishes", &payloads); err != nil {
		return nil, err
	}

	c.logger.Infof("Found %d dishes!", len(payloads))

	for i, p := range payloads {
		if err := c.check(p); err != nil {
			return nil, fmt.Errorf("dish %d: %w", i, err)
		}
	}

	dishes := make([]menu.Dish, len(payloads))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.concurrency)

	for i, p := range payloads {
		i, p := i, p
		eg.Go(func() error {
			c.logger.Infof("Fetching CO2e emissions for `%s`", p.Title)

			co2e, err := c.fetchCO2e(egCtx, p.CO2eURL)
			if err != nil {
				return fmt.Errorf("dish %s: %w", p.ID, err)
			}

			dishes[i] = menu.NewDish(p.Title, co2e, p.ID)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return dishes, nil
}

// fetchCO2e reads the kgCo2E field from a dish emissions endpoint
func (c *Client) fetchCO2e(ctx context.Context, url string) (float64, error) {
	var payload EmissionsPayload
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return 0, err
	}

	if err := c.check(payload); err != nil {
		return 0, err
	}

	return *payload.KgCO2e, nil
}

// getJSON performs a GET request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Operation: "GET " + url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Operation: "read " + url, Err: err}
	}

	if err := sonic.ConfigStd.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response from %s: %w", url, err)
	}

	return nil
}

// check validates a payload and converts the first failure to a ValidationError
func (c *Client) check(payload any) error {
	err := c.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed on '%s' check", fe.Tag()),
		}
	}

	return err
}

// parseTimestamp reads an ISO-8601 timestamp with a zone offset
func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return time.Time{}, &ValidationError{
		Field:   "date",
		Message: fmt.Sprintf("invalid timestamp %q: %v", s, firstErr),
	}
}
