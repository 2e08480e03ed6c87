package lattice

import "runtime"

// getGoroutineID returns the ID of the current goroutine, used to key the
// goroutine-local identity state. The stack header has the fixed shape
// "goroutine <id> [<state>]:", so the id is the first run of digits in
// it. This is an internal implementation detail and is never exposed
// publicly.
func getGoroutineID() uint64 {
	var buf [64]byte
	header := buf[:runtime.Stack(buf[:], false)]

	var id uint64
	seen := false
	for _, b := range header {
		if b < '0' || b > '9' {
			if seen {
				break
			}
			continue
		}
		seen = true
		id = id*10 + uint64(b-'0')
	}
	if !seen {
		return 0
	}
	return id
}
