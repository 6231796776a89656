// Package output renders command results as JSON or YAML.
package output
