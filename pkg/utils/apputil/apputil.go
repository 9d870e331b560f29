// Package apputil holds small filesystem helpers used at startup.
package apputil

import (
	"os"
	"path/filepath"
)

// FileExists reports whether the path exists and is a regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// EnsureDir creates the parent directory of path if it does not exist.
func EnsureDir(path string) (err error) {
	return os.MkdirAll(filepath.Dir(path), 0o700)
}
