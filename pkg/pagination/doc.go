// Package pagination drives page-by-page loading of a scrolling feed.
//
// A Controller owns the accumulated feed.Page. Rendering surfaces report
// their visible window on every layout update; the controller asks the
// scroll observer whether the near-end threshold is crossed and, if no
// fetch is in flight and the source is not exhausted, fetches the next
// page from the injected PageFetcher.
//
// Example usage:
//
//	ctrl, err := pagination.New(redditClient, pagination.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	ctrl.LoadMore() // first page
//	<-ctrl.Idle()
//	ctrl.OnScrollMetricsChanged([]int{1, 2, 3, 4, 5}, len(ctrl.State().Items))
//
// The controller:
//   - Starts at most one fetch at a time (the loading flag is set before the fetch starts)
//   - Merges results in issue order, dropping items whose ID is already present
//   - Never retries a failed fetch; the error is kept in State.Err until the next success
//   - Discards results that arrive after Close or Refresh (epoch check)
package pagination
