//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package state

// lockFile is a no-op where flock is unavailable; only the in-process
// lock applies there.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
