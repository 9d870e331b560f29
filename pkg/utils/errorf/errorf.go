// Package errorf creates errors that are logged at the site they are made.
package errorf

import (
	"fmt"

	"bigbrotr.dev/pkg/utils/log"
)

// E formats an error, logs it at error level and returns it.
func E(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.E.Chk(err)
	return
}

// W formats an error, logs it at warn level and returns it.
func W(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.W.Chk(err)
	return
}

// D formats an error, logs it at debug level and returns it.
func D(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.D.Chk(err)
	return
}
