// Package configs provides embedded configuration templates for recall.
//
// Templates are embedded at build time with //go:embed so they are
// available in every distribution, source builds and binary releases
// alike. They are consumed by:
//   - cmd/recall/cmd/init.go: creates .recall.yaml in the project root
//     and the user config at ~/.config/recall/config.yaml
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/recall/config.yaml)
//  3. Project config (.recall.yaml)
//  4. Environment variables (OPENCLAW_MONGODB_URI, OPENAI_API_KEY,
//     RECALL_LOG_LEVEL)
//
// To change a template, edit the .yaml file in this directory and
// rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the machine-level configuration template,
// written by `recall init --user` to ~/.config/recall/config.yaml.
// Holds settings that apply to all projects on a machine, typically
// the connection string and API keys.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the project-level configuration template,
// written by `recall init` to .recall.yaml in the project root. Every
// option ships commented out; defaults work without the file.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
