package grid

import "net/url"

// Navigator connects a grid to the location it is displayed at, usually a
// browser URL.
//
// Navigate is fire-and-forget: the change is reported back through the
// Subscribe callback once the location actually changes, the same way
// back/forward navigation is reported. Implementations may call the
// callback synchronously from inside Navigate.
type Navigator interface {
	// CurrentParameters returns the query parameters of the current location.
	CurrentParameters() url.Values

	// Navigate pushes a new location with the given parameters.
	Navigate(params url.Values)

	// Subscribe registers fn for every location change and returns a
	// function that removes it.
	Subscribe(fn func(url.Values)) (unsubscribe func())
}
