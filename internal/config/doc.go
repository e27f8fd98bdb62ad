// Package config loads, validates, and normalizes inkwell configuration.
//
// Configuration is read from a TOML file (default
// ~/.config/inkwell/config.toml) with defaults applied for any missing
// values. A Config is constructed once at process start and passed into each
// component's constructor; nothing reads configuration ambiently.
package config
