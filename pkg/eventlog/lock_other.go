//go:build !unix

package eventlog

import "os"

// lockFile is a no-op where flock is unavailable; O_APPEND still keeps single writes whole.
func lockFile(*os.File) (func(), error) {
	return func() {}, nil
}
