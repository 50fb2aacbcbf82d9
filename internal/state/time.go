package state

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control lastUpdated and milestone timestamps.
var timeNow = time.Now

func stamp() string {
	return timeNow().UTC().Format(time.RFC3339)
}
