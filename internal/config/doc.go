// ABOUTME: Package config loads cognee-mcp configuration.
// ABOUTME: YAML file with ${VAR} expansion, environment overrides, and validation.

// Package config provides configuration loading for cognee-mcp.
//
// Values come from three layers: built-in defaults, an optional YAML file,
// and environment variables. The environment always wins. A missing config
// file is not an error; the server runs from defaults plus environment.
package config
