// Package config loads nowhere.yaml.
//
// Sources are merged in order (files and inline YAML, later wins), then
// NOWHERE_-prefixed environment variables are overlaid (NOWHERE_LOG__LEVEL
// sets log.level), then ${VAR} placeholders are expanded, then the result is
// validated against the embedded CUE schema and defaults are filled in.
package config
