// Package configs provides the embedded configuration template for
// phasergun. The template is embedded at build time so `phasergun init`
// works in every distribution without locating files on disk.
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated template written by
// `phasergun init` as .phasergun.yaml in the project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
