// Package query implements the shared data-fetching client used by every
// dashboard view.
//
// One Client is created per process and passed by reference to whatever
// needs backend data. It keeps a cache of State values keyed by request Key
// and coordinates fetches so that:
//
//   - at most one fetch per key is in flight at any time; concurrent callers
//     share it (deduplication)
//   - data younger than the stale time is served from cache without a fetch
//   - stale data is still returned immediately while a background refresh runs
//   - failed fetches are retried with backoff before the key settles to
//     StatusError, and cached data survives the error
//
// # Calls
//
//	Query     - non-blocking; returns the current State and starts a
//	            background fetch if needed
//	Fetch     - blocking; for one-shot commands
//	Subscribe - listen for State changes on a key
//	Watch     - Subscribe + Query + optional polling at a refetch interval
//	Invalidate, SetData, State, Close
//
// # Notifications
//
// Every state change (fetch started, fetch settled, data set) is delivered to
// the key's listeners in the order it happened. Each Subscription has its own
// delivery goroutine, so a slow listener never stalls a fetch and listeners
// may call back into the Client. After Unsubscribe returns no new listener
// call begins; an in-flight fetch for the key still completes and populates
// the cache for later consumers.
package query
