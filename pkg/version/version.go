// Package version exposes the release version string of bigbrotr.
package version

// V is the current version of the application.
var V = "v0.3.1"
