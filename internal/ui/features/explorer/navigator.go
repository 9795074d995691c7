package explorer

import (
	"net/url"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/navigation"
)

// browserNavigator mirrors the address bar of one browser tab. Navigate
// records the new location and queues a pushState for the tab's update
// stream; Report records a location the browser already moved to
// (back/forward) without echoing it.
type browserNavigator struct {
	*navigation.History
	pushes chan string
}

func newBrowserNavigator(path string, initial url.Values) *browserNavigator {
	return &browserNavigator{
		History: navigation.New(path, initial),
		pushes:  make(chan string, 1),
	}
}

// Navigate pushes params and queues the new location for the browser.
func (n *browserNavigator) Navigate(params url.Values) {
	before := n.Location()
	n.History.Navigate(params)

	loc := n.Location()
	if loc == before {
		return
	}
	select {
	case n.pushes <- loc:
		return
	default:
	}
	// Only the newest location matters to the browser.
	select {
	case <-n.pushes:
	default:
	}
	select {
	case n.pushes <- loc:
	default:
	}
}

// Report applies a location change that happened in the browser.
func (n *browserNavigator) Report(search string) error {
	params, err := url.ParseQuery(strings.TrimPrefix(search, "?"))
	if err != nil {
		return err
	}
	n.Replace(params)
	return nil
}

// Pushes delivers locations the browser should push onto its history.
func (n *browserNavigator) Pushes() <-chan string {
	return n.pushes
}
