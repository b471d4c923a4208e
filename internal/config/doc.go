// Package config loads, validates, and normalizes bibtag's TOML
// configuration.
package config
