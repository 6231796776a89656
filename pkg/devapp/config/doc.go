// Package config loads and saves the github-dev-app YAML settings file. Every
// setting is optional; command-line flags take precedence over it.
package config
