// Package chk provides one-line error guards: `if chk.E(err) { return }`
// logs the error with its source location and reports whether it was non-nil.
package chk

import (
	"bigbrotr.dev/pkg/utils/log"
)

// E logs a non-nil error at error level and returns true if err != nil.
func E(err error) bool { return log.E.Chk(err) }

// W logs a non-nil error at warn level and returns true if err != nil.
func W(err error) bool { return log.W.Chk(err) }

// D logs a non-nil error at debug level and returns true if err != nil.
func D(err error) bool { return log.D.Chk(err) }

// T logs a non-nil error at trace level and returns true if err != nil.
func T(err error) bool { return log.T.Chk(err) }
