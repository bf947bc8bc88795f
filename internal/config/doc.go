// Package config defines the provisioning plan and shared settings and
// provides helpers to load, validate and save them in YAML format.
//
// Every setting is optional: a missing file yields the rustup defaults.
package config
