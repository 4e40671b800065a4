// Package config loads and validates collectord configuration.
//
// Configuration is a single YAML file. ${VAR} references are expanded from
// the environment at load time, which is how API keys and the database
// password are injected in deployment.
package config
