//go:build wasip1

// Command plugin is a sample collect plugin. It reports the port it is
// given as capability.
//
// Build it as a reactor module:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o plugin.wasm ./cmd/plugin
package main

import (
	"log/slog"

	"github.com/reglet-dev/reglet-collect/guest"
	"github.com/reglet-dev/reglet-collect/log"
)

func init() {
	logger := slog.New(log.NewHandler(log.WithLevel(slog.LevelDebug)))
	slog.SetDefault(logger)

	guest.Register(guest.NewCollector(guest.DefaultHeap(), guest.PortReport, guest.WithLogger(logger)))
}

// main is not called in a reactor module.
func main() {}
