package potato

// DishRef is a dish reference inside a day payload
type DishRef struct {
	ID string `json:"id" validate:"required"`
}

// DayPayload is one element of the /menu response
type DayPayload struct {
	Dishes []DishRef `json:"dishes" validate:"dive"`
	Date   string    `json:"date" validate:"required"`
}

// DishPayload is one element of the /dishes response
type DishPayload struct {
	Title   string `json:"title" validate:"required"`
	ID      string `json:"id" validate:"required"`
	CO2eURL string `json:"co2e_url" validate:"required,url"`
}

// EmissionsPayload is the response of a dish's co2e_url
type EmissionsPayload struct {
	KgCO2e *float64 `json:"kgCo2E" validate:"required,gte=0"`
}
