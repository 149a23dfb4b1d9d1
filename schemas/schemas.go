// Package schemas embeds the CUE schemas shipped with the binary.
package schemas

import _ "embed"

// Simulation is the schema of the simulation config file.
//
//go:embed simulation.cue
var Simulation []byte
