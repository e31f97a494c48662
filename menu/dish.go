package menu

// Dish is a menu item with its emissions per portion.
type Dish struct {
	Title string
	CO2e  float64 // kg CO2e per portion
	ID    string
}

// DishRecord is the cached form of a Dish.
type DishRecord struct {
	Title string  `json:"title"`
	CO2e  float64 `json:"co2e"`
	ID    string  `json:"id"`
}

// NewDish creates a Dish.
func NewDish(title string, co2e float64, id string) Dish {
	return Dish{Title: title, CO2e: co2e, ID: id}
}

// ParseDish rebuilds a Dish from its cached record.
func ParseDish(r DishRecord) Dish {
	return NewDish(r.Title, r.CO2e, r.ID)
}

// Record returns the cached form of the dish.
func (d Dish) Record() DishRecord {
	return DishRecord{Title: d.Title, CO2e: d.CO2e, ID: d.ID}
}
