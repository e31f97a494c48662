// Package menu models the school menu dataset: dishes with their CO2e
// emissions, served days with survey quantities, and the Dataset that ties
// them together.
//
// A Dataset is built either by downloading a fresh snapshot through a Fetcher
// or by loading a previously saved snapshot from a Store:
//
//	dataset, err := menu.Download(ctx, client)
//	if err != nil {
//		return err
//	}
//	if err := dataset.Save(ctx, store); err != nil {
//		return err
//	}
//
//	dataset, err = menu.Load(ctx, store, loc)
//
// All dates are calendar dates at midnight in a single location, whichever
// path produced them, so PastDays compares like with like.
package menu
