// Package flock provides cross-platform file locking utilities.
//
// The session store and the run registry are the only files inside a
// workspace written from more than one goroutine (parallel-group completion)
// or process (engine plus review tooling). Both serialise their
// read-modify-write cycles through an exclusive lock on a sibling .lock file.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - file is in use
//	}
//	defer flock.Unlock(file.Fd())
package flock
