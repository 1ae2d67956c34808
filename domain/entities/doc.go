// Package entities provides core domain entities shared by the host runner
// and its supporting packages.
package entities
