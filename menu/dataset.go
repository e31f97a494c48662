package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownDish is returned when a day references a dish id missing
	// from the dataset.
	ErrUnknownDish = errors.New("unknown dish")

	// ErrNoDishes is returned when a mean is requested for a day without dishes.
	ErrNoDishes = errors.New("day has no dishes")
)

// Fetcher retrieves a fresh snapshot of the menu from a remote source.
type Fetcher interface {
	FetchDays(ctx context.Context) ([]Day, error)
	FetchDishes(ctx context.Context) ([]Dish, error)
}

// Store persists the two cache documents.
type Store interface {
	SaveDishes(ctx context.Context, dishes map[string]DishRecord) error
	SaveDays(ctx context.Context, days []DayRecord) error
	LoadDishes(ctx context.Context) (map[string]DishRecord, error)
	LoadDays(ctx context.Context) ([]DayRecord, error)
}

// Dataset holds every served day, in source order, and every dish keyed by id.
type Dataset struct {
	Days   []Day
	Dishes map[string]Dish
}

// NewDataset aggregates days and dishes. Dishes sharing an id collapse to the
// last one in the slice.
func NewDataset(days []Day, dishes []Dish) *Dataset {
	byID := make(map[string]Dish, len(dishes))
	for _, dish := range dishes {
		byID[dish.ID] = dish
	}

	return &Dataset{Days: days, Dishes: byID}
}

// Download fetches days, then dishes, and aggregates them. Nothing is kept if
// either call fails.
func Download(ctx context.Context, fetcher Fetcher) (*Dataset, error) {
	days, err := fetcher.FetchDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch days: %w", err)
	}

	dishes, err := fetcher.FetchDishes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dishes: %w", err)
	}

	return NewDataset(days, dishes), nil
}

// Load rebuilds a Dataset from the store. Both documents must be present and
// well formed; there is no partial load.
func Load(ctx context.Context, store Store, loc *time.Location) (*Dataset, error) {
	dishRecords, err := store.LoadDishes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dishes: %w", err)
	}

	dayRecords, err := store.LoadDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load days: %w", err)
	}

	dishes := make([]Dish, 0, len(dishRecords))
	for _, r := range dishRecords {
		dishes = append(dishes, ParseDish(r))
	}

	days := make([]Day, 0, len(dayRecords))
	for i, r := range dayRecords {
		day, err := ParseDay(r, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse day %d: %w", i, err)
		}
		days = append(days, day)
	}

	return NewDataset(days, dishes), nil
}

// Save writes the dishes document, then the days document.
func (d *Dataset) Save(ctx context.Context, store Store) error {
	dishes := make(map[string]DishRecord, len(d.Dishes))
	for id, dish := range d.Dishes {
		dishes[id] = dish.Record()
	}

	if err := store.SaveDishes(ctx, dishes); err != nil {
		return fmt.Errorf("failed to save dishes: %w", err)
	}

	days := make([]DayRecord, 0, len(d.Days))
	for _, day := range d.Days {
		days = append(days, day.Serialize())
	}

	if err := store.SaveDays(ctx, days); err != nil {
		return fmt.Errorf("failed to save days: %w", err)
	}

	return nil
}

// Dish looks up a dish by id.
func (d *Dataset) Dish(id string) (Dish, bool) {
	dish, ok := d.Dishes[id]
	return dish, ok
}

// PastDays returns the days dated strictly before now, in their original order.
func (d *Dataset) PastDays(now time.Time) []Day {
	past := make([]Day, 0, len(d.Days))
	for _, day := range d.Days {
		if day.Date.Before(now) {
			past = append(past, day)
		}
	}
	return past
}

// MeanCO2e returns the mean emissions of the dishes served on day. Every id
// must resolve; an unresolved id fails with ErrUnknownDish.
func (d *Dataset) MeanCO2e(day Day) (float64, error) {
	if len(day.Dishes) == 0 {
		return 0, fmt.Errorf("%s: %w", day.Date.Format(time.DateOnly), ErrNoDishes)
	}

	total := decimal.Zero
	for _, id := range day.Dishes {
		dish, ok := d.Dish(id)
		if !ok {
			return 0, fmt.Errorf("%s: %w: %s", day.Date.Format(time.DateOnly), ErrUnknownDish, id)
		}
		total = total.Add(decimal.NewFromFloat(dish.CO2e))
	}

	return total.Div(decimal.NewFromInt(int64(len(day.Dishes)))).InexactFloat64(), nil
}
