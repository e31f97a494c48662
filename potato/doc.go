// Package potato provides a client for the school menu API that serves the
// list of dishes, the per-day menu, and a per-dish emissions endpoint.
//
// Basic Usage:
//
//	client := potato.NewClient("menu-co2e/1.0", logger)
//
//	days, err := client.FetchDays(ctx)
//	if err != nil {
//		return err
//	}
//
//	dishes, err := client.FetchDishes(ctx)
//	if err != nil {
//		return err
//	}
//
// FetchDishes resolves the emissions of every dish with one extra request per
// dish. Those requests run one at a time unless SetConcurrency raises the
// limit; results keep the order of the dish index either way, and the first
// failure cancels the rest.
//
// Endpoints:
//
// - GET /menu: list of days, {"dishes": [{"id": ...}], "date": "2023-01-02T00:00:00+01:00"}
// - GET /dishes: list of dishes, {"title": ..., "id": ..., "co2e_url": ...}
// - GET <co2e_url>: {"kgCo2E": 0.42}
package potato
