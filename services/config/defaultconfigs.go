package config

import "embed"

// -----------------------------------------------------------------------------
// Embedded configuration
//
// One YAML profile per device id, compiled into the image.
// Key: file name without extension (profiles/<device>.yaml)
// -----------------------------------------------------------------------------

//go:embed profiles/*.yaml
var profiles embed.FS
