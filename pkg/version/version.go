// Package version carries the build identity reported by M115.
package version

const (
	// Firmware is overridden at release time by the build pipeline.
	Firmware = "v1.2.0-dev"
	Hardware = "rev-c"
)
