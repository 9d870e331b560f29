// Package log exposes the lol level printers under single letter names:
// log.F (fatal), log.E, log.W, log.I, log.D and log.T.
package log

import (
	"bigbrotr.dev/pkg/utils/lol"
)

var (
	F = lol.New(lol.Fatal)
	E = lol.New(lol.Error)
	W = lol.New(lol.Warn)
	I = lol.New(lol.Info)
	D = lol.New(lol.Debug)
	T = lol.New(lol.Trace)
)
