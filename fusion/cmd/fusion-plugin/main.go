// Command fusion-plugin is built with -buildmode=plugin and loaded by the
// host, which looks up NewPlugin and drives the returned value.
package main

import (
	"github.com/telhawk-systems/fusion-engine/fusion/internal/plugin"
	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

// NewPlugin is the symbol the host resolves after opening the shared
// object. Every call returns an independent plugin.
func NewPlugin() geyser.Plugin {
	return plugin.New()
}

func main() {}
