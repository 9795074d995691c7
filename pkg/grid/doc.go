// Package grid implements a server-paginated data grid whose view state
// lives in the URL query string.
//
// A Query (page, size, sort, filters, column visibility, row selection) is
// encoded into URL parameters by a Codec. A State owns the current Query of
// one grid instance. User actions are expressed as Intents: the State merges
// an intent into the query, encodes it and asks its Navigator to navigate.
// The navigator reports the new location back and only then does the query
// change, so browser back/forward and local actions take the same path.
//
// Rows come from a Fetcher. Every fetch is numbered; results of fetches
// that were superseded by a newer query are dropped.
//
// Project turns the current state into a ViewModel ready for rendering.
package grid
